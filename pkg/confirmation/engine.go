package confirmation

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/chain-fuzzer/pkg/cache"
	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/metrics"
	sync_util "github.com/code-payments/chain-fuzzer/pkg/sync"
)

const (
	metricsStructName = "confirmation.engine"

	includedCacheBudget = 10_000
)

// Submission is a transaction to be sequenced, signed and broadcast on behalf
// of Sender. Seq, Fee and Signature of Transaction are overwritten.
type Submission struct {
	Sender      chain.Address
	Passphrase  string
	Transaction *chain.Transaction
}

// Engine submits transactions and polls the chain until they settle.
//
// Sequence numbers are tracked per sender. They're read from the chain on a
// sender's first use and advanced locally afterwards, so that multiple
// transactions from one sender can be in flight at once. A sender whose
// transaction fails to broadcast, is rejected or times out is resynced from
// the chain on its next use. A sender is never resynced while it has other
// transactions in flight, since the chain doesn't account for them yet.
type Engine struct {
	log    *logrus.Entry
	conf   *conf
	client chain.Client
	signer chain.MessageSigner

	senderLocks *sync_util.StripedLock

	seqMu   sync.Mutex
	nextSeq map[chain.Address]uint64

	inflightMu       sync.Mutex
	inflight         map[chain.Hash]chain.Address
	inflightBySender map[chain.Address]int

	// Inclusion is final, so recently included hashes aren't polled again
	included cache.Cache[struct{}]
}

func NewEngine(client chain.Client, signer chain.MessageSigner, configProvider ConfigProvider) *Engine {
	return &Engine{
		log:              logrus.StandardLogger().WithField("type", "confirmation/engine"),
		conf:             configProvider(),
		client:           client,
		signer:           signer,
		senderLocks:      sync_util.NewStripedLock(64),
		nextSeq:          make(map[chain.Address]uint64),
		inflight:         make(map[chain.Hash]chain.Address),
		inflightBySender: make(map[chain.Address]int),
		included:         cache.NewCache[struct{}](includedCacheBudget),
	}
}

// SubmitAndTrack sequences, signs and broadcasts each submission in order,
// returning the transaction hashes in submission order. Submissions from the
// same sender receive consecutive sequence numbers.
//
// On failure, the hashes of the submissions already broadcast are returned
// alongside the error.
func (e *Engine) SubmitAndTrack(ctx context.Context, submissions []Submission) ([]chain.Hash, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "SubmitAndTrack")
	defer tracer.End()

	hashes := make([]chain.Hash, 0, len(submissions))
	for i, submission := range submissions {
		hash, err := e.submit(ctx, submission)
		if err != nil {
			tracer.OnError(err)
			return hashes, errors.Wrapf(err, "error submitting transaction %d of %d", i+1, len(submissions))
		}
		hashes = append(hashes, hash)
	}

	recordSubmissionsEvent(ctx, len(hashes))
	return hashes, nil
}

func (e *Engine) submit(ctx context.Context, submission Submission) (chain.Hash, error) {
	log := e.log.WithFields(logrus.Fields{
		"method": "submit",
		"sender": submission.Sender.String(),
	})

	if submission.Transaction == nil {
		return chain.Hash{}, errors.New("submission has no transaction")
	}
	if submission.Transaction.Sender != submission.Sender {
		return chain.Hash{}, errors.Errorf("transaction sender %s doesn't match submission sender", submission.Transaction.Sender)
	}

	// Sequence assignment and broadcast happen under the sender's lock, so the
	// chain sees a sender's transactions in sequence order.
	unlock := e.senderLocks.Lock([]byte(submission.Sender))
	defer unlock()

	seq, err := e.reserveSeq(ctx, submission.Sender)
	if err != nil {
		return chain.Hash{}, err
	}

	txn := *submission.Transaction
	txn.Seq = seq
	txn.Fee = chain.Quantity(e.conf.fee.Get(ctx))
	txn.Signature = nil

	if err := chain.SignTransaction(ctx, e.signer, &txn, submission.Passphrase); err != nil {
		// Nothing reached the chain, so the sequence number is reused
		e.rewindSeq(submission.Sender, seq)
		return chain.Hash{}, err
	}

	hash, err := e.client.SendSignedTransaction(ctx, &txn)
	if err != nil {
		log.WithError(err).WithField("seq", seq).Warn("failure broadcasting transaction")
		if !e.resync(submission.Sender) {
			e.rewindSeq(submission.Sender, seq)
		}
		return chain.Hash{}, err
	}

	e.track(hash, submission.Sender)

	log.WithFields(logrus.Fields{
		"seq":  seq,
		"hash": hash.String(),
		"kind": txn.Kind,
	}).Debug("transaction broadcast")

	return hash, nil
}

// reserveSeq returns the sequence number for the sender's next transaction.
// The caller must hold the sender's lock.
func (e *Engine) reserveSeq(ctx context.Context, sender chain.Address) (uint64, error) {
	e.seqMu.Lock()
	seq, ok := e.nextSeq[sender]
	e.seqMu.Unlock()

	if !ok {
		var err error
		seq, err = e.client.GetSeq(ctx, sender)
		if err != nil {
			return 0, errors.Wrapf(err, "error getting seq for %s", sender)
		}
	}

	e.seqMu.Lock()
	e.nextSeq[sender] = seq + 1
	e.seqMu.Unlock()

	return seq, nil
}

// rewindSeq hands seq out again on the sender's next use. The caller must hold
// the sender's lock.
func (e *Engine) rewindSeq(sender chain.Address, seq uint64) {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()

	if _, ok := e.nextSeq[sender]; ok {
		e.nextSeq[sender] = seq
	}
}

// Resync forgets the locally tracked sequence of sender, so that it's read
// from the chain on its next use. It's a no-op while sender has transactions
// in flight, in which case false is returned and the local sequence keeps
// counting past them.
func (e *Engine) Resync(sender chain.Address) bool {
	unlock := e.senderLocks.Lock([]byte(sender))
	defer unlock()

	return e.resync(sender)
}

// resync is Resync for callers that already hold the sender's lock.
func (e *Engine) resync(sender chain.Address) bool {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	if e.inflightBySender[sender] > 0 {
		e.log.WithFields(logrus.Fields{
			"method":   "Resync",
			"sender":   sender.String(),
			"inflight": e.inflightBySender[sender],
		}).Debug("not resyncing sender with transactions in flight")
		return false
	}

	e.seqMu.Lock()
	delete(e.nextSeq, sender)
	e.seqMu.Unlock()
	return true
}

// InFlight returns the number of broadcast transactions that haven't been
// observed to settle.
func (e *Engine) InFlight() int {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	return len(e.inflight)
}

// AwaitAll blocks until every transaction has been included in the chain.
//
// Each round queries the inclusion of all pending transactions concurrently,
// and only classifies them once every query has completed. Included
// transactions are never queried again. The remaining transactions are then
// checked for an error hint, in order, and the first rejection fails the call
// with an InclusionError. Rounds are spaced by a fixed poll interval.
//
// When a maximum number of rounds or a deadline is configured, exceeding it
// results in a TimeoutError.
func (e *Engine) AwaitAll(ctx context.Context, hashes []chain.Hash) error {
	log := e.log.WithField("method", "AwaitAll")

	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "AwaitAll")
	defer tracer.End()

	pending := e.withoutIncluded(dedupe(hashes))
	tracer.AddAttributes(map[string]interface{}{
		"requested": len(hashes),
		"pending":   len(pending),
	})

	maxRounds := e.conf.maxRounds.Get(ctx)
	deadline := e.conf.deadline.Get(ctx)
	pollInterval := e.conf.pollInterval.Get(ctx)

	start := time.Now()
	for round := uint64(1); len(pending) > 0; round++ {
		if err := ctx.Err(); err != nil {
			e.onAbandoned(pending...)
			return err
		}

		included, err := e.checkInclusion(ctx, pending)
		if err != nil {
			tracer.OnError(err)
			e.onAbandoned(pending...)
			return err
		}

		var stillPending []chain.Hash
		var settled []chain.Hash
		for i, hash := range pending {
			if included[i] {
				settled = append(settled, hash)
			} else {
				stillPending = append(stillPending, hash)
			}
		}
		e.untrack(settled...)
		e.markIncluded(settled...)
		recordRoundEvent(ctx, round, len(pending), len(settled))

		pending = stillPending
		if len(pending) == 0 {
			break
		}

		for _, hash := range pending {
			hint, err := e.client.GetErrorHint(ctx, hash)
			if err != nil {
				err = errors.Wrapf(err, "error getting error hint for %s", hash)
				tracer.OnError(err)
				e.onAbandoned(pending...)
				return err
			}

			if len(hint) > 0 {
				log.WithFields(logrus.Fields{
					"hash": hash.String(),
					"hint": hint,
				}).Warn("transaction was rejected")

				// The rest of the batch is abandoned along with it
				e.onAbandoned(pending...)
				return &InclusionError{Hash: hash, Hint: hint}
			}
		}

		elapsed := time.Since(start)
		if (maxRounds > 0 && round >= maxRounds) || (deadline > 0 && elapsed >= deadline) {
			log.WithFields(logrus.Fields{
				"pending": len(pending),
				"rounds":  round,
			}).Warn("timed out waiting for transactions")

			e.onAbandoned(pending...)
			return &TimeoutError{
				Pending: pending,
				Rounds:  round,
				Elapsed: elapsed,
			}
		}

		select {
		case <-ctx.Done():
			e.onAbandoned(pending...)
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	metrics.RecordDuration(ctx, confirmationLatencyMetricName, time.Since(start))
	return nil
}

// SubmitAndAwait submits the transactions and waits for all of them to be
// included.
func (e *Engine) SubmitAndAwait(ctx context.Context, submissions []Submission) ([]chain.Hash, error) {
	hashes, err := e.SubmitAndTrack(ctx, submissions)
	if err != nil {
		return hashes, err
	}
	return hashes, e.AwaitAll(ctx, hashes)
}

// checkInclusion queries the inclusion of every hash concurrently. The
// result is indexed like hashes.
func (e *Engine) checkInclusion(ctx context.Context, hashes []chain.Hash) ([]bool, error) {
	included := make([]bool, len(hashes))

	var g errgroup.Group
	for i, hash := range hashes {
		g.Go(func() error {
			contains, err := e.client.ContainsTransaction(ctx, hash)
			if err != nil {
				return errors.Wrapf(err, "error checking inclusion of %s", hash)
			}
			included[i] = contains
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return included, nil
}

func (e *Engine) track(hash chain.Hash, sender chain.Address) {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	if _, ok := e.inflight[hash]; ok {
		return
	}
	e.inflight[hash] = sender
	e.inflightBySender[sender]++
}

// untrack stops tracking the hashes and returns the senders of those that were
// in flight.
func (e *Engine) untrack(hashes ...chain.Hash) []chain.Address {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	var senders []chain.Address
	for _, hash := range hashes {
		sender, ok := e.inflight[hash]
		if !ok {
			continue
		}
		senders = append(senders, sender)
		delete(e.inflight, hash)

		e.inflightBySender[sender]--
		if e.inflightBySender[sender] <= 0 {
			delete(e.inflightBySender, sender)
		}
	}
	return senders
}

// onAbandoned stops tracking transactions that won't be awaited any further,
// and resyncs their senders since the locally assigned sequences may no
// longer match the chain.
func (e *Engine) onAbandoned(hashes ...chain.Hash) {
	for _, sender := range e.untrack(hashes...) {
		e.Resync(sender)
	}
}

func (e *Engine) markIncluded(hashes ...chain.Hash) {
	for _, hash := range hashes {
		// ErrKeyExists only means it's already cached
		_ = e.included.Insert(hash.String(), struct{}{}, 1)
	}
}

func (e *Engine) withoutIncluded(hashes []chain.Hash) []chain.Hash {
	res := make([]chain.Hash, 0, len(hashes))
	for _, hash := range hashes {
		if _, ok := e.included.Retrieve(hash.String()); !ok {
			res = append(res, hash)
		}
	}
	return res
}

func dedupe(hashes []chain.Hash) []chain.Hash {
	seen := make(map[chain.Hash]struct{}, len(hashes))
	res := make([]chain.Hash, 0, len(hashes))
	for _, hash := range hashes {
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		res = append(res, hash)
	}
	return res
}
