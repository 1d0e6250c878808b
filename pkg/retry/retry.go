package retry

import (
	"context"
)

// Action is a function to be performed in a retriable manner.
type Action func() error

// Retrier retries the provided action.
type Retrier interface {
	Retry(action Action) (uint, error)

	// RetryContext is Retry, but stops retrying once ctx is done.
	RetryContext(ctx context.Context, action Action) (uint, error)
}

type retrier struct {
	strategies []Strategy
}

// NewRetrier returns a Retrier that will retry actions based off of the
// provided strategies. If no strategies are provided, the retrier acts
// as a tight-loop, retrying until no error is returned from the action.
func NewRetrier(strategies ...Strategy) Retrier {
	return &retrier{
		strategies: strategies,
	}
}

func (r *retrier) Retry(action Action) (uint, error) {
	return Retry(action, r.strategies...)
}

func (r *retrier) RetryContext(ctx context.Context, action Action) (uint, error) {
	strategies := make([]Strategy, 0, len(r.strategies)+1)
	strategies = append(strategies, Context(ctx))
	strategies = append(strategies, r.strategies...)
	return Retry(action, strategies...)
}

// Retry executes the provided action, potentially multiple times based off of
// the provided strategies. Retry blocks until the action is successful, or
// one of the strategies indicates no further retries should be performed.
//
// Strategies are evaluated in order, so those that induce delays should be
// specified last.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	for i := uint(1); ; i++ {
		err := action()
		if err == nil {
			return i, nil
		}

		if !shouldRetry(i, err, strategies) {
			return i, err
		}
	}
}

// Loop executes the provided action forever, until one of the strategies
// indicates a failed attempt should not be retried. A successful attempt
// resets the attempt counter.
func Loop(action Action, strategies ...Strategy) error {
	for i := uint(1); ; i++ {
		err := action()
		if err == nil {
			i = 0
			continue
		}

		if !shouldRetry(i, err, strategies) {
			return err
		}
	}
}

func shouldRetry(attempts uint, err error, strategies []Strategy) bool {
	for _, s := range strategies {
		if !s(attempts, err) {
			return false
		}
	}
	return true
}
