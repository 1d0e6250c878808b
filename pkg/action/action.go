package action

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/state"
)

// Action is a validated, ready to sign transaction together with the state
// transition it causes once confirmed.
type Action interface {
	Kind() chain.Kind

	// Sender is the account that signs and pays for the transaction.
	Sender() chain.Address

	// Transaction returns a fresh unsigned transaction. Sequence and fee are
	// assigned at submission.
	Transaction() *chain.Transaction

	// Apply records the effects of the confirmed transaction identified by
	// txHash. It must only be called after confirmation.
	Apply(s *state.State, txHash chain.Hash)
}

// ValidationError indicates action parameters are inconsistent with the
// locally tracked state.
type ValidationError struct {
	Kind   chain.Kind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, e.Reason)
}

func newValidationError(kind chain.Kind, format string, args ...interface{}) error {
	return &ValidationError{
		Kind:   kind,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsValidationError reports whether err, or any error it wraps, is a
// ValidationError.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
