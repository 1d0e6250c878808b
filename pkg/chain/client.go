package chain

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrRateLimited  = errors.New("rate limited")
	ErrServiceError = errors.New("service error")
)

// Client is the subset of a chain node's RPC surface used to activate accounts
// and to confirm transactions.
type Client interface {
	// GetBalance returns the native coin balance of an account. Unknown
	// accounts have a zero balance.
	GetBalance(ctx context.Context, account Address) (Quantity, error)

	// GetSeq returns the sequence number the next transaction from account
	// must carry.
	GetSeq(ctx context.Context, account Address) (uint64, error)

	// SendSignedTransaction broadcasts a signed transaction and returns its hash.
	SendSignedTransaction(ctx context.Context, txn *Transaction) (Hash, error)

	// ContainsTransaction reports whether the transaction has been included.
	ContainsTransaction(ctx context.Context, hash Hash) (bool, error)

	// GetErrorHint returns the reason the chain rejected a transaction, or an
	// empty string if no terminal error has been observed yet.
	GetErrorHint(ctx context.Context, hash Hash) (string, error)
}
