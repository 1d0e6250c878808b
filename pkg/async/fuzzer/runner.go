package async_fuzzer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/chain-fuzzer/pkg/action"
	"github.com/code-payments/chain-fuzzer/pkg/confirmation"
	"github.com/code-payments/chain-fuzzer/pkg/scenario"
	"github.com/code-payments/chain-fuzzer/pkg/state"
)

// Outcome is how a single fuzzing round ended.
type Outcome string

const (
	OutcomeConfirmed          Outcome = "confirmed"
	OutcomeSkipped            Outcome = "skipped"
	OutcomeRejectedAsExpected Outcome = "rejected_as_expected"
	OutcomeInvalidAsExpected  Outcome = "invalid_as_expected"
	OutcomeFailed             Outcome = "failed"
)

// ErrUnexpectedInclusion indicates the chain accepted a transaction it was
// expected to reject.
var ErrUnexpectedInclusion = errors.New("transaction expected to be rejected was included")

// Failure is a round whose result contradicts what the scenario expected.
// Transport errors and timeouts aren't Failures.
type Failure struct {
	Scenario string
	Cause    error
}

func (f *Failure) Error() string {
	return "scenario " + f.Scenario + " failed: " + f.Cause.Error()
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

func IsFailure(err error) bool {
	var failure *Failure
	return errors.As(err, &failure)
}

// Runner drives the chain with weighted scenarios, one round at a time, and
// keeps the state model in sync with confirmed transactions.
//
// A Runner owns its state model and isn't safe for concurrent use.
type Runner struct {
	log           *logrus.Entry
	runID         string
	scenarios     *scenario.Engine
	confirmations *confirmation.Engine
	state         *state.State
	passphrase    string
}

func NewRunner(scenarios *scenario.Engine, confirmations *confirmation.Engine, s *state.State, passphrase string) *Runner {
	runID := uuid.New().String()

	return &Runner{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type":   "async/fuzzer/runner",
			"run_id": runID,
		}),
		runID:         runID,
		scenarios:     scenarios,
		confirmations: confirmations,
		state:         s,
		passphrase:    passphrase,
	}
}

func (r *Runner) RunID() string {
	return r.runID
}

// RunOnce picks and runs a scenario. When it produces an action, the action's
// transaction is submitted and awaited, and the state is updated only once
// it's confirmed.
func (r *Runner) RunOnce(ctx context.Context) (Outcome, error) {
	start := time.Now()
	entry := r.scenarios.Pick()

	outcome, expected, err := r.runOnce(ctx, entry)
	recordOutcomeEvent(ctx, r.runID, entry.Name, outcome, expected, time.Since(start))
	return outcome, err
}

func (r *Runner) runOnce(ctx context.Context, entry *scenario.Entry) (Outcome, bool, error) {
	log := r.log.WithFields(logrus.Fields{
		"method":   "RunOnce",
		"scenario": entry.Name,
	})

	result, err := r.scenarios.Run(ctx, entry, r.state)
	if skip, ok := scenario.AsSkip(err); ok {
		log.WithField("reason", skip.Reason).Info("scenario skipped")
		return OutcomeSkipped, true, nil
	}
	if action.IsValidationError(err) && result != nil && !result.Expected {
		log.WithError(err).Debug("scenario was invalid as expected")
		return OutcomeInvalidAsExpected, false, nil
	}
	if action.IsValidationError(err) {
		return OutcomeFailed, true, &Failure{Scenario: entry.Name, Cause: err}
	}
	if err != nil {
		return OutcomeFailed, true, errors.Wrapf(err, "error running scenario %s", entry.Name)
	}

	act := result.Action
	log = log.WithFields(logrus.Fields{
		"kind":     act.Kind(),
		"sender":   act.Sender().String(),
		"expected": result.Expected,
	})

	hashes, err := r.confirmations.SubmitAndTrack(ctx, []confirmation.Submission{{
		Sender:      act.Sender(),
		Passphrase:  r.passphrase,
		Transaction: act.Transaction(),
	}})
	if err != nil {
		return OutcomeFailed, result.Expected, errors.Wrapf(err, "error submitting %s transaction", act.Kind())
	}
	log = log.WithField("hash", hashes[0].String())

	err = r.confirmations.AwaitAll(ctx, hashes)
	if inclusionErr, ok := confirmation.AsInclusionError(err); ok {
		if !result.Expected {
			log.WithField("hint", inclusionErr.Hint).Info("transaction was rejected as expected")
			return OutcomeRejectedAsExpected, false, nil
		}

		log.WithField("hint", inclusionErr.Hint).Warn("transaction was unexpectedly rejected")
		return OutcomeFailed, true, &Failure{Scenario: entry.Name, Cause: err}
	} else if err != nil {
		return OutcomeFailed, result.Expected, errors.Wrapf(err, "error awaiting %s transaction", act.Kind())
	}

	// The chain changed regardless of what was expected
	act.Apply(r.state, hashes[0])

	if !result.Expected {
		log.Warn("transaction was unexpectedly included")
		return OutcomeFailed, false, &Failure{Scenario: entry.Name, Cause: ErrUnexpectedInclusion}
	}

	log.Debug("transaction confirmed")
	return OutcomeConfirmed, true, nil
}

// Stats summarizes the rounds of a Run.
type Stats struct {
	Rounds    uint64
	Outcomes  map[Outcome]uint64
	LastError error
}

// Run repeats RunOnce until rounds have completed, a round fails, or ctx is
// done. Zero rounds runs until ctx is done.
func (r *Runner) Run(ctx context.Context, rounds uint64) (*Stats, error) {
	stats := &Stats{
		Outcomes: make(map[Outcome]uint64),
	}

	for rounds == 0 || stats.Rounds < rounds {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		outcome, err := r.RunOnce(ctx)
		stats.Rounds++
		stats.Outcomes[outcome]++
		if err != nil {
			stats.LastError = err
			return stats, err
		}
	}
	return stats, nil
}
