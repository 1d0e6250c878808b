package scenario

import (
	"context"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/chain-fuzzer/pkg/action"
	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/state"
)

// Engine picks scenarios by weight and runs them.
//
// The engine isn't safe for concurrent use, since it shares a single random
// source across picks and runs to keep seeded executions reproducible.
type Engine struct {
	log         *logrus.Entry
	table       Table
	totalWeight uint64
	env         *Env
}

func NewEngine(table Table, accounts Accounts, rng *rand.Rand) (*Engine, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}

	var totalWeight uint64
	names := make(map[string]struct{})
	for _, entry := range table {
		if len(entry.Name) == 0 {
			return nil, errors.New("scenario name is required")
		}
		if _, ok := names[entry.Name]; ok {
			return nil, errors.Errorf("duplicate scenario %s", entry.Name)
		}
		names[entry.Name] = struct{}{}

		if entry.Scenario == nil {
			return nil, errors.Errorf("scenario %s has no implementation", entry.Name)
		}

		// Pick samples with Int63n, which bounds the total
		if uint64(entry.Weight) > math.MaxInt64-totalWeight {
			return nil, errors.Errorf("scenario weights must not sum past %d", int64(math.MaxInt64))
		}
		totalWeight += uint64(entry.Weight)
	}
	if totalWeight == 0 {
		return nil, errors.New("scenario weights must not sum to zero")
	}

	accounts.AssetAccounts = append([]chain.Address(nil), accounts.AssetAccounts...)

	return &Engine{
		log:         logrus.StandardLogger().WithField("type", "scenario/engine"),
		table:       append(Table(nil), table...),
		totalWeight: totalWeight,
		env:         &Env{Rand: rng, Accounts: accounts},
	}, nil
}

// Pick selects an entry with probability proportional to its weight.
func (e *Engine) Pick() *Entry {
	r := uint64(e.env.Rand.Int63n(int64(e.totalWeight)))
	for i := range e.table {
		weight := uint64(e.table[i].Weight)
		if r < weight {
			return &e.table[i]
		}
		r -= weight
	}

	// Unreachable, since r < totalWeight
	return &e.table[len(e.table)-1]
}

// Run invokes the entry's scenario against s, which it only reads. A Skip is
// returned as an error, and can be detected with IsSkip.
func (e *Engine) Run(ctx context.Context, entry *Entry, s *state.State) (*Result, error) {
	log := e.log.WithFields(logrus.Fields{
		"method":   "Run",
		"scenario": entry.Name,
	})

	result, err := entry.Scenario(ctx, e.env, s)
	if err != nil {
		if !IsSkip(err) && !action.IsValidationError(err) {
			log.WithError(err).Warn("failure running scenario")
		}
		return result, err
	}

	if result == nil || result.Action == nil {
		return nil, errors.Errorf("scenario %s produced no action", entry.Name)
	}
	return result, nil
}

// Accounts returns the accounts scenarios operate on.
func (e *Engine) Accounts() Accounts {
	return e.env.Accounts
}
