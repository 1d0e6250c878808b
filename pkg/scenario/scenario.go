package scenario

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/code-payments/chain-fuzzer/pkg/action"
	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/state"
)

// Skip signals a scenario found no eligible input this round. It isn't a
// failure, and another scenario should be tried instead.
type Skip struct {
	Reason string
}

func NewSkip(reason string) error {
	return &Skip{Reason: reason}
}

func (s *Skip) Error() string {
	return "scenario skipped: " + s.Reason
}

// AsSkip returns the Skip err wraps, if any.
func AsSkip(err error) (*Skip, bool) {
	var skip *Skip
	if errors.As(err, &skip) {
		return skip, true
	}
	return nil, false
}

func IsSkip(err error) bool {
	_, ok := AsSkip(err)
	return ok
}

// Result is the action a scenario produced, and whether the chain is
// expected to accept it.
type Result struct {
	Expected bool
	Action   action.Action
}

// Accounts are the well known accounts scenarios operate on.
type Accounts struct {
	Regulator     chain.Address
	RegulatorAlt  chain.Address
	AssetAccounts []chain.Address
}

// Env is what a scenario has access to besides state.
type Env struct {
	Rand     *rand.Rand
	Accounts Accounts
}

// Func synthesizes an action from the current state. It returns a Skip error
// when no eligible input exists. A Func may return an action.ValidationError
// alongside a non-nil Result when constructing an invalid action is the point
// of the scenario.
type Func func(ctx context.Context, env *Env, s *state.State) (*Result, error)

type Entry struct {
	Name        string
	Weight      uint
	Description string
	Scenario    Func
}

// Table is the fixed set of scenarios to choose from.
type Table []Entry

// PickRandom uniformly samples an item satisfying predicate. A nil predicate
// accepts every item. It returns false when no item is eligible.
func PickRandom[T any](rng *rand.Rand, items []T, predicate func(T) bool) (T, bool) {
	var eligible []T
	for _, item := range items {
		if predicate == nil || predicate(item) {
			eligible = append(eligible, item)
		}
	}

	if len(eligible) == 0 {
		var zero T
		return zero, false
	}
	return eligible[rng.Intn(len(eligible))], true
}
