package chain

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"
	"golang.org/x/time/rate"

	"github.com/code-payments/chain-fuzzer/pkg/retry"
	"github.com/code-payments/chain-fuzzer/pkg/retry/backoff"
)

const (
	// Reference: https://www.jsonrpc.org/specification#error_object
	invalidParamsCode = -32602

	rpcNodeUnhealthyCode = -32005
)

type rpcClient struct {
	log     *logrus.Entry
	client  jsonrpc.RPCClient
	retrier retry.Retrier
	limiter *rate.Limiter
}

// RPCClient is a Client that can also sign messages with keys held by the node.
type RPCClient interface {
	Client
	MessageSigner
}

// NewRPCClient returns a client using the specified JSON-RPC endpoint. A zero
// requestsPerSecond disables client side rate limiting.
func NewRPCClient(endpoint string, requestsPerSecond float64) RPCClient {
	return NewRPCClientWithOptions(endpoint, requestsPerSecond, nil)
}

// NewRPCClientWithOptions returns a client configured with the specified RPC options.
func NewRPCClientWithOptions(endpoint string, requestsPerSecond float64, opts *jsonrpc.RPCClientOpts) RPCClient {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &rpcClient{
		log:    logrus.StandardLogger().WithField("type", "chain/rpc_client"),
		client: jsonrpc.NewClientWithOpts(endpoint, opts),
		retrier: retry.NewRetrier(
			retry.RetriableErrors(ErrRateLimited, ErrServiceError),
			retry.Limit(3),
			retry.BackoffWithJitter(backoff.BinaryExponential(time.Second), 10*time.Second, 0.1),
		),
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *rpcClient) call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	_, err := c.retrier.RetryContext(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.client.CallFor(out, method, params...)
		if err == nil {
			return nil
		}

		return c.handleRpcError(method, err)
	})

	return err
}

func (c *rpcClient) handleRpcError(method string, err error) error {
	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return err
	}
	if rpcErr.Code == 429 {
		c.log.WithField("method", method).Warn("rate limited")
		return ErrRateLimited
	}
	if rpcErr.Code >= 500 || rpcErr.Code == rpcNodeUnhealthyCode {
		return ErrServiceError
	}

	return err
}

func (c *rpcClient) GetBalance(ctx context.Context, account Address) (Quantity, error) {
	var raw interface{}
	if err := c.call(ctx, &raw, "chain_getBalance", account.String(), nil); err != nil {
		if rpcErr, ok := err.(*jsonrpc.RPCError); ok && rpcErr.Code == invalidParamsCode {
			return 0, errors.Errorf("invalid account %s", account)
		}
		return 0, errors.Wrap(err, "chain_getBalance() failed to send request")
	}

	value, err := parseUint(raw)
	if err != nil {
		return 0, errors.Wrap(err, "invalid balance in response")
	}
	return Quantity(value), nil
}

func (c *rpcClient) GetSeq(ctx context.Context, account Address) (uint64, error) {
	var raw interface{}
	if err := c.call(ctx, &raw, "chain_getSeq", account.String(), nil); err != nil {
		return 0, errors.Wrap(err, "chain_getSeq() failed to send request")
	}

	value, err := parseUint(raw)
	if err != nil {
		return 0, errors.Wrap(err, "invalid seq in response")
	}
	return value, nil
}

func (c *rpcClient) SendSignedTransaction(ctx context.Context, txn *Transaction) (Hash, error) {
	if len(txn.Signature) == 0 {
		return Hash{}, errors.New("transaction is not signed")
	}

	// note: a single struct param would otherwise be sent as a named params
	//       object rather than a positional array.
	var hashStr string
	if err := c.call(ctx, &hashStr, "mempool_sendSignedTransaction", []interface{}{txn}); err != nil {
		return Hash{}, errors.Wrap(err, "mempool_sendSignedTransaction() failed to send request")
	}

	hash, err := NewHashFromString(hashStr)
	if err != nil {
		return Hash{}, errors.Wrap(err, "invalid hash in response")
	}
	return hash, nil
}

func (c *rpcClient) ContainsTransaction(ctx context.Context, hash Hash) (bool, error) {
	var contains bool
	if err := c.call(ctx, &contains, "chain_containsTransaction", hash.String()); err != nil {
		return false, errors.Wrap(err, "chain_containsTransaction() failed to send request")
	}
	return contains, nil
}

func (c *rpcClient) GetErrorHint(ctx context.Context, hash Hash) (string, error) {
	// The node responds with null until it has seen the transaction fail
	var hint *string
	if err := c.call(ctx, &hint, "mempool_getErrorHint", hash.String()); err != nil {
		return "", errors.Wrap(err, "mempool_getErrorHint() failed to send request")
	}

	if hint == nil {
		return "", nil
	}
	return *hint, nil
}

func (c *rpcClient) SignMessage(ctx context.Context, account Address, passphrase string, message []byte) ([]byte, error) {
	var sigHex string
	err := c.call(ctx, &sigHex, "account_sign", "0x"+hex.EncodeToString(message), account.String(), passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "account_sign() failed to send request")
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex encoded signature in response")
	}
	return sig, nil
}

// parseUint accepts both JSON numbers and the 0x-prefixed hex strings nodes
// use for 64 bit values.
func parseUint(raw interface{}) (uint64, error) {
	switch typed := raw.(type) {
	case float64:
		if typed < 0 {
			return 0, errors.Errorf("negative value %v", typed)
		}
		return uint64(typed), nil
	case string:
		return strconv.ParseUint(typed, 0, 64)
	case nil:
		return 0, errors.New("value is null")
	default:
		return 0, errors.Errorf("unexpected value type %T", raw)
	}
}
