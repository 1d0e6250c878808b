package async_fuzzer

import (
	"context"
	"time"

	"github.com/code-payments/chain-fuzzer/pkg/metrics"
	"github.com/code-payments/chain-fuzzer/pkg/retry"
	"github.com/code-payments/chain-fuzzer/pkg/retry/backoff"
)

func (p *service) fuzzWorker(serviceCtx context.Context, interval time.Duration) error {
	delay := interval

	err := retry.Loop(
		func() (err error) {
			time.Sleep(delay)

			if err := serviceCtx.Err(); err != nil {
				return err
			}

			if p.conf.disableFuzzing.Get(serviceCtx) {
				return nil
			}

			maxRounds := p.conf.maxRounds.Get(serviceCtx)
			if maxRounds > 0 && p.getRounds() >= maxRounds {
				return errMaxRoundsReached
			}

			tracedCtx, end := metrics.StartTransaction(serviceCtx, "async__fuzzer_service__run_once")
			defer func() {
				end(err)
			}()

			outcome, err := p.runner.RunOnce(tracedCtx)
			if err != nil && !IsFailure(err) {
				p.log.WithError(err).Warn("failure running fuzzing round")
			}
			p.recordRound(outcome)
			return err
		},
		retry.NonRetriableErrors(context.Canceled, context.DeadlineExceeded, errMaxRoundsReached),
		retry.RetriableIf(func(err error) bool {
			return !IsFailure(err)
		}),
		retry.BackoffWithJitter(backoff.BinaryExponential(interval), time.Minute, 0.1),
	)

	return err
}
