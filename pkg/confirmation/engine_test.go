package confirmation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/chain/memory"
	"github.com/code-payments/chain-fuzzer/pkg/testutil"
)

const testPassphrase = "passphrase"

type testEnv struct {
	ctx      context.Context
	client   *memory.Client
	keys     *chain.KeyStore
	engine   *Engine
	alice    chain.Address
	bob      chain.Address
	receiver chain.Address
}

func setup(t *testing.T, overrides *testOverrides) *testEnv {
	if overrides == nil {
		overrides = &testOverrides{}
	}
	if overrides.pollInterval == 0 {
		overrides.pollInterval = 5 * time.Millisecond
	}
	if overrides.fee == 0 {
		overrides.fee = 100
	}

	client := memory.NewClient()
	keys := chain.NewKeyStore()

	env := &testEnv{
		ctx:      context.Background(),
		client:   client,
		keys:     keys,
		engine:   NewEngine(client, keys, withManualTestOverrides(overrides)),
		alice:    testutil.NewRandomAccount(t, keys, testPassphrase),
		bob:      testutil.NewRandomAccount(t, keys, testPassphrase),
		receiver: testutil.NewRandomAddress(t),
	}

	client.SetBalance(env.alice, 10_000)
	client.SetBalance(env.bob, 10_000)

	return env
}

func (e *testEnv) pay(sender chain.Address, quantity chain.Quantity) Submission {
	return Submission{
		Sender:      sender,
		Passphrase:  testPassphrase,
		Transaction: chain.NewPayTransaction(sender, e.receiver, quantity),
	}
}

// stall makes the sender's next transaction wait forever on an earlier
// sequence number that never lands.
func (e *testEnv) stall(sender chain.Address) {
	e.client.SetSeq(sender, 10)
	e.engine.Resync(sender)
}

func TestSubmitAndTrack_SequenceMonotonic(t *testing.T) {
	env := setup(t, nil)

	env.client.SetSeq(env.alice, 5)

	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{
		env.pay(env.alice, 1),
		env.pay(env.bob, 2),
		env.pay(env.alice, 3),
		env.pay(env.alice, 4),
	})
	require.NoError(t, err)
	require.Len(t, hashes, 4)

	broadcasts := env.client.GetBroadcasts()
	require.Len(t, broadcasts, 4)

	expectedSeqs := []uint64{5, 0, 6, 7}
	for i, txn := range broadcasts {
		assert.Equal(t, expectedSeqs[i], txn.Seq)
		assert.EqualValues(t, 100, txn.Fee)
		assert.EqualValues(t, i+1, txn.Pay.Quantity)
		assert.NoError(t, chain.VerifyTransaction(txn))

		hash, err := txn.Hash()
		require.NoError(t, err)
		assert.Equal(t, hashes[i], hash)
	}
	assert.Equal(t, 4, env.engine.InFlight())

	// Sequences continue locally without re-reading the chain
	_, err = env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 5)})
	require.NoError(t, err)

	broadcasts = env.client.GetBroadcasts()
	assert.EqualValues(t, 8, broadcasts[4].Seq)
	assert.Equal(t, 2, env.client.GetCallCount("GetSeq"))
}

func TestSubmitAndTrack_DoesntMutateSubmission(t *testing.T) {
	env := setup(t, nil)

	submission := env.pay(env.alice, 1)
	_, err := env.engine.SubmitAndTrack(env.ctx, []Submission{submission})
	require.NoError(t, err)

	assert.Zero(t, submission.Transaction.Seq)
	assert.Zero(t, submission.Transaction.Fee)
	assert.Empty(t, submission.Transaction.Signature)
}

func TestSubmitAndTrack_InvalidSubmission(t *testing.T) {
	env := setup(t, nil)

	_, err := env.engine.SubmitAndTrack(env.ctx, []Submission{{Sender: env.alice, Passphrase: testPassphrase}})
	assert.Error(t, err)

	mismatched := env.pay(env.alice, 1)
	mismatched.Sender = env.bob
	_, err = env.engine.SubmitAndTrack(env.ctx, []Submission{mismatched})
	assert.Error(t, err)

	wrongPassphrase := env.pay(env.alice, 1)
	wrongPassphrase.Passphrase = "wrong"
	_, err = env.engine.SubmitAndTrack(env.ctx, []Submission{wrongPassphrase})
	assert.ErrorIs(t, err, chain.ErrWrongPassphrase)

	assert.Empty(t, env.client.GetBroadcasts())
}

func TestSubmitAndTrack_BroadcastFailureResyncs(t *testing.T) {
	env := setup(t, nil)

	_, err := env.engine.SubmitAndAwait(env.ctx, []Submission{env.pay(env.alice, 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, env.client.GetCallCount("GetSeq"))

	env.client.SimulateErrors()
	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 2)})
	assert.Error(t, err)
	assert.Empty(t, hashes)
	env.client.StopSimulatingErrors()

	// Nothing is in flight, so the sender is read from the chain again
	_, err = env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 3)})
	require.NoError(t, err)
	assert.Equal(t, 2, env.client.GetCallCount("GetSeq"))

	broadcasts := env.client.GetBroadcasts()
	assert.EqualValues(t, 1, broadcasts[len(broadcasts)-1].Seq)
}

func TestSubmitAndTrack_BroadcastFailureWithTransactionsInFlight(t *testing.T) {
	env := setup(t, nil)

	first, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 1)})
	require.NoError(t, err)

	env.client.SimulateErrors()
	_, err = env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 2)})
	assert.Error(t, err)
	env.client.StopSimulatingErrors()

	// Seq 0 is still in flight, so the failed seq 1 is handed out again
	// rather than re-reading the chain
	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 3)})
	require.NoError(t, err)
	assert.Equal(t, 1, env.client.GetCallCount("GetSeq"))

	broadcasts := env.client.GetBroadcasts()
	require.Len(t, broadcasts, 2)
	assert.EqualValues(t, 0, broadcasts[0].Seq)
	assert.EqualValues(t, 1, broadcasts[1].Seq)

	require.NoError(t, env.engine.AwaitAll(env.ctx, append(first, hashes...)))
}

func TestResync_SkippedWhileInFlight(t *testing.T) {
	env := setup(t, nil)

	env.client.SetPollsUntilIncluded(2)

	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 1)})
	require.NoError(t, err)

	assert.False(t, env.engine.Resync(env.alice))
	assert.True(t, env.engine.Resync(env.bob))

	// The next transaction follows the one in flight instead of reusing its seq
	more, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 2)})
	require.NoError(t, err)
	assert.Equal(t, 1, env.client.GetCallCount("GetSeq"))

	broadcasts := env.client.GetBroadcasts()
	require.Len(t, broadcasts, 2)
	assert.EqualValues(t, 0, broadcasts[0].Seq)
	assert.EqualValues(t, 1, broadcasts[1].Seq)

	require.NoError(t, env.engine.AwaitAll(env.ctx, append(hashes, more...)))
	assert.Zero(t, env.engine.InFlight())
	assert.True(t, env.engine.Resync(env.alice))
}

func TestAwaitAll_HappyPath(t *testing.T) {
	env := setup(t, nil)

	env.client.SetPollsUntilIncluded(3)

	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{
		env.pay(env.alice, 1),
		env.pay(env.alice, 2),
		env.pay(env.bob, 3),
	})
	require.NoError(t, err)

	require.NoError(t, env.engine.AwaitAll(env.ctx, hashes))
	assert.Zero(t, env.engine.InFlight())

	balance, err := env.client.GetBalance(env.ctx, env.receiver)
	require.NoError(t, err)
	assert.EqualValues(t, 6, balance)

	seq, err := env.client.GetSeq(env.ctx, env.alice)
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)

	// Nothing is queried once everything has settled
	calls := env.client.GetCallCount("ContainsTransaction")
	require.NoError(t, env.engine.AwaitAll(env.ctx, nil))
	assert.Equal(t, calls, env.client.GetCallCount("ContainsTransaction"))
}

func TestAwaitAll_PreviouslyIncludedHashesAreSkipped(t *testing.T) {
	env := setup(t, nil)

	hashes, err := env.engine.SubmitAndAwait(env.ctx, []Submission{
		env.pay(env.alice, 1),
		env.pay(env.bob, 1),
	})
	require.NoError(t, err)

	containsCalls := env.client.GetCallCount("ContainsTransaction")
	hintCalls := env.client.GetCallCount("GetErrorHint")

	require.NoError(t, env.engine.AwaitAll(env.ctx, hashes))
	require.NoError(t, env.engine.AwaitAll(env.ctx, hashes[1:]))
	assert.Equal(t, containsCalls, env.client.GetCallCount("ContainsTransaction"))
	assert.Equal(t, hintCalls, env.client.GetCallCount("GetErrorHint"))

	// Unknown hashes are still polled
	hash := testutil.NewRandomHash(t)
	env.client.SimulateErrors()
	assert.Error(t, env.engine.AwaitAll(env.ctx, []chain.Hash{hashes[0], hash}))
}

func TestAwaitAll_IncludedHashesAreNotRequeried(t *testing.T) {
	env := setup(t, &testOverrides{maxRounds: 3})

	env.stall(env.bob)

	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{
		env.pay(env.alice, 1),
		env.pay(env.bob, 1),
	})
	require.NoError(t, err)

	// Bob's transaction uses seq 10, but the chain now expects 9
	env.client.SetSeq(env.bob, 9)

	err = env.engine.AwaitAll(env.ctx, hashes)
	require.Error(t, err)
	require.True(t, IsTimeoutError(err))

	timeoutErr := err.(*TimeoutError)
	assert.Equal(t, []chain.Hash{hashes[1]}, timeoutErr.Pending)
	assert.EqualValues(t, 3, timeoutErr.Rounds)

	assert.Equal(t, 1, env.client.GetContainsCalls(hashes[0]))
	assert.Equal(t, 0, env.client.GetHintCalls(hashes[0]))
	assert.Equal(t, 3, env.client.GetContainsCalls(hashes[1]))
	assert.Equal(t, 3, env.client.GetHintCalls(hashes[1]))

	// Timed out senders are resynced
	getSeqCalls := env.client.GetCallCount("GetSeq")
	_, err = env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.bob, 1)})
	require.NoError(t, err)
	assert.Equal(t, getSeqCalls+1, env.client.GetCallCount("GetSeq"))
	assert.EqualValues(t, 9, env.client.GetBroadcasts()[2].Seq)
}

func TestAwaitAll_FailFastOnRejection(t *testing.T) {
	env := setup(t, nil)

	env.client.SetPollsUntilIncluded(1000)
	env.client.RejectWhen(func(txn *chain.Transaction) string {
		if txn.Sender == env.bob {
			return memory.HintInsufficientBalance
		}
		return ""
	})

	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{
		env.pay(env.alice, 1),
		env.pay(env.bob, 1),
		env.pay(env.bob, 2),
	})
	require.NoError(t, err)

	err = env.engine.AwaitAll(env.ctx, hashes)
	require.Error(t, err)

	inclusionErr, ok := AsInclusionError(err)
	require.True(t, ok)
	assert.Equal(t, hashes[1], inclusionErr.Hash)
	assert.Equal(t, memory.HintInsufficientBalance, inclusionErr.Hint)

	// Failed on the first round, without looking past the first rejection
	assert.Equal(t, 1, env.client.GetContainsCalls(hashes[0]))
	assert.Equal(t, 1, env.client.GetHintCalls(hashes[1]))
	assert.Equal(t, 0, env.client.GetHintCalls(hashes[2]))

	// The rejected sender is resynced
	getSeqCalls := env.client.GetCallCount("GetSeq")
	_, err = env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.bob, 3)})
	require.NoError(t, err)
	assert.Equal(t, getSeqCalls+1, env.client.GetCallCount("GetSeq"))
}

func TestAwaitAll_RejectionAfterPolling(t *testing.T) {
	env := setup(t, nil)

	env.client.SetPollsUntilIncluded(1000)

	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 1)})
	require.NoError(t, err)

	go func() {
		assert.NoError(t, testutil.WaitFor(time.Second, time.Millisecond, func() bool {
			return env.client.GetContainsCalls(hashes[0]) >= 3
		}))
		env.client.Reject(hashes[0], memory.HintTooLowSeq)
	}()

	err = env.engine.AwaitAll(env.ctx, hashes)
	inclusionErr, ok := AsInclusionError(err)
	require.True(t, ok)
	assert.Equal(t, memory.HintTooLowSeq, inclusionErr.Hint)
	assert.GreaterOrEqual(t, env.client.GetContainsCalls(hashes[0]), 3)
}

func TestAwaitAll_Deadline(t *testing.T) {
	env := setup(t, &testOverrides{deadline: 30 * time.Millisecond})

	env.stall(env.alice)
	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 1)})
	require.NoError(t, err)
	env.client.SetSeq(env.alice, 9)

	start := time.Now()
	err = env.engine.AwaitAll(env.ctx, hashes)
	require.True(t, IsTimeoutError(err))
	assert.True(t, time.Since(start) >= 30*time.Millisecond)
	assert.True(t, err.(*TimeoutError).Elapsed >= 30*time.Millisecond)
}

func TestAwaitAll_ContextCancellation(t *testing.T) {
	env := setup(t, nil)

	env.stall(env.alice)
	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 1)})
	require.NoError(t, err)
	env.client.SetSeq(env.alice, 9)

	ctx, cancel := context.WithTimeout(env.ctx, 50*time.Millisecond)
	defer cancel()

	err = env.engine.AwaitAll(ctx, hashes)
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Zero(t, env.engine.InFlight())
}

func TestAwaitAll_TransportError(t *testing.T) {
	env := setup(t, nil)

	hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, 1)})
	require.NoError(t, err)

	env.client.SimulateErrors()
	err = env.engine.AwaitAll(env.ctx, hashes)
	require.Error(t, err)

	_, ok := AsInclusionError(err)
	assert.False(t, ok)
	assert.False(t, IsTimeoutError(err))

	// The batch is no longer tracked, and its sender is read from the chain
	// on its next use
	assert.Zero(t, env.engine.InFlight())
	assert.True(t, env.engine.Resync(env.alice))
}

func TestAwaitAll_HintTransportErrorStopsTracking(t *testing.T) {
	env := setup(t, nil)

	env.client.SetPollsUntilIncluded(1000)

	for i := 0; i < 3; i++ {
		hashes, err := env.engine.SubmitAndTrack(env.ctx, []Submission{env.pay(env.alice, chain.Quantity(i+1))})
		require.NoError(t, err)
		assert.Equal(t, 1, env.engine.InFlight())

		env.engine.client = &failingHintClient{Client: env.client}
		err = env.engine.AwaitAll(env.ctx, hashes)
		env.engine.client = env.client

		require.Error(t, err)
		_, ok := AsInclusionError(err)
		assert.False(t, ok)
		assert.Zero(t, env.engine.InFlight())
	}
}

func TestAwaitAll_InclusionQueriesAreConcurrent(t *testing.T) {
	env := setup(t, nil)

	const pending = 8

	var submissions []Submission
	for i := 0; i < pending; i++ {
		sender := testutil.NewRandomAccount(t, env.keys, testPassphrase)
		env.client.SetBalance(sender, 1000)
		submissions = append(submissions, env.pay(sender, 1))
	}

	hashes, err := env.engine.SubmitAndTrack(env.ctx, submissions)
	require.NoError(t, err)

	// Every query blocks until all of them are in progress at once, which a
	// sequential round would never reach
	barrier := newBarrierClient(env.client, pending)
	env.engine.client = barrier

	ctx, cancel := context.WithTimeout(env.ctx, time.Second)
	defer cancel()

	require.NoError(t, env.engine.AwaitAll(ctx, hashes))
	assert.EqualValues(t, pending, barrier.maxConcurrent())
	assert.Zero(t, env.engine.InFlight())
}

func TestSubmitAndAwait(t *testing.T) {
	env := setup(t, nil)

	hashes, err := env.engine.SubmitAndAwait(env.ctx, []Submission{
		env.pay(env.alice, 1),
		env.pay(env.alice, 1),
	})
	require.NoError(t, err)
	assert.Len(t, hashes, 2)

	balance, err := env.client.GetBalance(env.ctx, env.receiver)
	require.NoError(t, err)
	assert.EqualValues(t, 2, balance)

	balance, err = env.client.GetBalance(env.ctx, env.alice)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000-2-200, balance)
}

// barrierClient holds every ContainsTransaction call until n of them are in
// progress at the same time.
type barrierClient struct {
	chain.Client

	mu      sync.Mutex
	n       int
	active  int
	maxSeen int
	open    chan struct{}
}

func newBarrierClient(client chain.Client, n int) *barrierClient {
	return &barrierClient{
		Client: client,
		n:      n,
		open:   make(chan struct{}),
	}
}

func (c *barrierClient) ContainsTransaction(ctx context.Context, hash chain.Hash) (bool, error) {
	c.mu.Lock()
	c.active++
	if c.active > c.maxSeen {
		c.maxSeen = c.active
	}
	if c.active == c.n {
		close(c.open)
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}()

	select {
	case <-c.open:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return c.Client.ContainsTransaction(ctx, hash)
}

func (c *barrierClient) maxConcurrent() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.maxSeen
}

// failingHintClient fails every GetErrorHint call.
type failingHintClient struct {
	chain.Client
}

func (c *failingHintClient) GetErrorHint(_ context.Context, _ chain.Hash) (string, error) {
	return "", errors.New("hint unavailable")
}
