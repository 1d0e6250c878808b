package memory

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
)

const (
	HintTooLowSeq              = "Too low sequence"
	HintInsufficientBalance    = "Insufficient balance"
	HintInsufficientPermission = "Insufficient permission"
	HintAssetSchemeNotFound    = "Asset scheme not found"
	HintAssetNotFound          = "Asset not found"
	HintInconsistentQuantity   = "Inconsistent asset quantity"
)

var errDeveloperInduced = errors.New("in memory chain: developer induced error")

type outPoint struct {
	txHash chain.Hash
	index  uint32
}

type entry struct {
	txn      *chain.Transaction
	polls    int
	included bool
	hint     string
}

// Client is an in memory ledger implementing chain.Client. Broadcast
// transactions are executed lazily, once they've been polled for inclusion
// the configured number of times, which simulates confirmation lag.
type Client struct {
	mu sync.Mutex

	balances   map[chain.Address]chain.Quantity
	seqs       map[chain.Address]uint64
	registrars map[chain.AssetType]*chain.Address
	spent      map[outPoint]struct{}

	entries    map[chain.Hash]*entry
	broadcasts []*chain.Transaction

	callsByMethod map[string]int
	containsCalls map[chain.Hash]int
	hintCalls     map[chain.Hash]int

	pollsUntilIncluded int
	rejecter           func(*chain.Transaction) string
	simulateErrors     bool
}

// NewClient returns an empty ledger that includes transactions on the first
// inclusion poll.
func NewClient() *Client {
	return &Client{
		balances:           make(map[chain.Address]chain.Quantity),
		seqs:               make(map[chain.Address]uint64),
		registrars:         make(map[chain.AssetType]*chain.Address),
		spent:              make(map[outPoint]struct{}),
		entries:            make(map[chain.Hash]*entry),
		callsByMethod:      make(map[string]int),
		containsCalls:      make(map[chain.Hash]int),
		hintCalls:          make(map[chain.Hash]int),
		pollsUntilIncluded: 1,
	}
}

// SetPollsUntilIncluded configures how many inclusion polls a transaction
// needs before it is executed.
func (c *Client) SetPollsUntilIncluded(polls int) {
	c.mu.Lock()
	c.pollsUntilIncluded = polls
	c.mu.Unlock()
}

func (c *Client) SetBalance(account chain.Address, balance chain.Quantity) {
	c.mu.Lock()
	c.balances[account] = balance
	c.mu.Unlock()
}

func (c *Client) SetSeq(account chain.Address, seq uint64) {
	c.mu.Lock()
	c.seqs[account] = seq
	c.mu.Unlock()
}

// SetAssetScheme registers an asset type. A nil registrar makes the scheme
// immutable.
func (c *Client) SetAssetScheme(assetType chain.AssetType, registrar *chain.Address) {
	c.mu.Lock()
	c.registrars[assetType] = registrar
	c.mu.Unlock()
}

// GetRegistrar returns the current registrar of an asset type.
func (c *Client) GetRegistrar(assetType chain.AssetType) (*chain.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	registrar, ok := c.registrars[assetType]
	return registrar, ok
}

// RejectWhen installs a rule evaluated on broadcast. A non-empty return value
// becomes the error hint of the transaction.
func (c *Client) RejectWhen(rejecter func(*chain.Transaction) string) {
	c.mu.Lock()
	c.rejecter = rejecter
	c.mu.Unlock()
}

// Reject marks a broadcast transaction as terminally rejected.
func (c *Client) Reject(hash chain.Hash, hint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[hash]; ok && !e.included {
		e.hint = hint
	}
}

func (c *Client) SimulateErrors() {
	c.mu.Lock()
	c.simulateErrors = true
	c.mu.Unlock()
}

func (c *Client) StopSimulatingErrors() {
	c.mu.Lock()
	c.simulateErrors = false
	c.mu.Unlock()
}

// GetBroadcasts returns every transaction accepted by SendSignedTransaction,
// in broadcast order.
func (c *Client) GetBroadcasts() []*chain.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := make([]*chain.Transaction, len(c.broadcasts))
	copy(res, c.broadcasts)
	return res
}

func (c *Client) GetCallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.callsByMethod[method]
}

func (c *Client) GetContainsCalls(hash chain.Hash) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.containsCalls[hash]
}

func (c *Client) GetHintCalls(hash chain.Hash) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.hintCalls[hash]
}

// GetBalance implements chain.Client.GetBalance.
func (c *Client) GetBalance(_ context.Context, account chain.Address) (chain.Quantity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callsByMethod["GetBalance"]++
	if c.simulateErrors {
		return 0, errDeveloperInduced
	}

	return c.balances[account], nil
}

// GetSeq implements chain.Client.GetSeq.
func (c *Client) GetSeq(_ context.Context, account chain.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callsByMethod["GetSeq"]++
	if c.simulateErrors {
		return 0, errDeveloperInduced
	}

	return c.seqs[account], nil
}

// SendSignedTransaction implements chain.Client.SendSignedTransaction.
func (c *Client) SendSignedTransaction(_ context.Context, txn *chain.Transaction) (chain.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callsByMethod["SendSignedTransaction"]++
	if c.simulateErrors {
		return chain.Hash{}, errDeveloperInduced
	}

	if err := txn.Validate(); err != nil {
		return chain.Hash{}, err
	}
	if err := chain.VerifyTransaction(txn); err != nil {
		return chain.Hash{}, err
	}

	hash, err := txn.Hash()
	if err != nil {
		return chain.Hash{}, err
	}
	if _, ok := c.entries[hash]; ok {
		return hash, nil
	}

	cloned := *txn
	e := &entry{txn: &cloned}
	if c.rejecter != nil {
		e.hint = c.rejecter(&cloned)
	}

	c.entries[hash] = e
	c.broadcasts = append(c.broadcasts, &cloned)
	return hash, nil
}

// ContainsTransaction implements chain.Client.ContainsTransaction.
func (c *Client) ContainsTransaction(_ context.Context, hash chain.Hash) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callsByMethod["ContainsTransaction"]++
	c.containsCalls[hash]++
	if c.simulateErrors {
		return false, errDeveloperInduced
	}

	e, ok := c.entries[hash]
	if !ok {
		return false, nil
	}
	if e.included {
		return true, nil
	}
	if len(e.hint) > 0 {
		return false, nil
	}

	e.polls++
	if e.polls < c.pollsUntilIncluded {
		return false, nil
	}

	return c.execute(e), nil
}

// GetErrorHint implements chain.Client.GetErrorHint.
func (c *Client) GetErrorHint(_ context.Context, hash chain.Hash) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callsByMethod["GetErrorHint"]++
	c.hintCalls[hash]++
	if c.simulateErrors {
		return "", errDeveloperInduced
	}

	e, ok := c.entries[hash]
	if !ok {
		return "", nil
	}
	return e.hint, nil
}

// execute applies the transaction if it's next in its sender's sequence. It
// reports whether the transaction was included.
func (c *Client) execute(e *entry) bool {
	txn := e.txn

	seq := c.seqs[txn.Sender]
	if txn.Seq > seq {
		// An earlier transaction from the same sender hasn't landed yet
		return false
	}
	if txn.Seq < seq {
		e.hint = HintTooLowSeq
		return false
	}

	cost := txn.Fee
	if txn.Kind == chain.KindPay {
		cost += txn.Pay.Quantity
	}
	if c.balances[txn.Sender] < cost {
		e.hint = HintInsufficientBalance
		return false
	}

	switch txn.Kind {
	case chain.KindPay:
		c.balances[txn.Pay.Receiver] += txn.Pay.Quantity
	case chain.KindTransferAsset:
		for _, input := range txn.TransferAsset.Inputs {
			if input.Owner != txn.Sender {
				e.hint = HintInsufficientPermission
				return false
			}
			if _, ok := c.spent[outPoint{input.TxHash, input.Index}]; ok {
				e.hint = HintAssetNotFound
				return false
			}
		}
		if !conservesQuantity(txn.TransferAsset) {
			e.hint = HintInconsistentQuantity
			return false
		}
		for _, input := range txn.TransferAsset.Inputs {
			c.spent[outPoint{input.TxHash, input.Index}] = struct{}{}
		}
	case chain.KindChangeAssetScheme:
		change := txn.ChangeAssetScheme
		registrar, ok := c.registrars[change.AssetType]
		if !ok {
			e.hint = HintAssetSchemeNotFound
			return false
		}
		if registrar == nil || *registrar != txn.Sender {
			e.hint = HintInsufficientPermission
			return false
		}
		if change.Registrar != nil {
			updated := *change.Registrar
			c.registrars[change.AssetType] = &updated
		}
	}

	c.balances[txn.Sender] -= cost
	c.seqs[txn.Sender]++
	e.included = true
	return true
}

// conservesQuantity reports whether the outputs of every asset type add up to
// exactly what the inputs spend. Totals that overflow never conserve.
func conservesQuantity(transfer *chain.TransferAsset) bool {
	totals := make(map[chain.AssetType]chain.Quantity)
	for _, input := range transfer.Inputs {
		if totals[input.AssetType] > math.MaxUint64-input.Quantity {
			return false
		}
		totals[input.AssetType] += input.Quantity
	}
	for _, output := range transfer.Outputs {
		remaining, ok := totals[output.AssetType]
		if !ok || output.Quantity > remaining {
			return false
		}
		totals[output.AssetType] = remaining - output.Quantity
	}
	for _, remaining := range totals {
		if remaining != 0 {
			return false
		}
	}
	return true
}
