package confirmation

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
)

// InclusionError indicates the chain terminally rejected a transaction.
type InclusionError struct {
	Hash chain.Hash
	Hint string
}

func (e *InclusionError) Error() string {
	return fmt.Sprintf("transaction %s was rejected: %s", e.Hash, e.Hint)
}

// AsInclusionError returns the InclusionError err wraps, if any.
func AsInclusionError(err error) (*InclusionError, bool) {
	var inclusionErr *InclusionError
	if errors.As(err, &inclusionErr) {
		return inclusionErr, true
	}
	return nil, false
}

// TimeoutError indicates polling gave up before every transaction settled.
type TimeoutError struct {
	Pending []chain.Hash
	Rounds  uint64
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%d transaction(s) still pending after %d round(s) and %v", len(e.Pending), e.Rounds, e.Elapsed)
}

func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}
