package async_fuzzer

import (
	"context"
	"time"

	"github.com/code-payments/chain-fuzzer/pkg/metrics"
	"github.com/code-payments/chain-fuzzer/pkg/osutil"
)

const (
	scenarioOutcomeEventName     = "FuzzerScenarioOutcome"
	fuzzerWorkerPollingEventName = "FuzzerWorkerPollingCheck"
)

func recordOutcomeEvent(ctx context.Context, runID, scenario string, outcome Outcome, expected bool, elapsed time.Duration) {
	metrics.RecordEvent(ctx, scenarioOutcomeEventName, map[string]interface{}{
		"run_id":     runID,
		"scenario":   scenario,
		"outcome":    string(outcome),
		"expected":   expected,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func (p *service) metricsGaugeWorker(ctx context.Context) error {
	delay := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			start := time.Now()

			p.recordPollingEvent(ctx)

			delay = time.Second - time.Since(start)
		}
	}
}

func (p *service) recordPollingEvent(ctx context.Context) {
	memoryUsed, memoryUsedPct := osutil.GetMemoryUsage()

	kvPairs := map[string]interface{}{
		"run_id":          p.runner.RunID(),
		"rounds":          p.getRounds(),
		"memory_used":     memoryUsed,
		"memory_used_pct": memoryUsedPct,
	}
	for outcome, count := range p.drainOutcomes() {
		kvPairs[string(outcome)] = count
	}

	metrics.RecordEvent(ctx, fuzzerWorkerPollingEventName, kvPairs)
}
