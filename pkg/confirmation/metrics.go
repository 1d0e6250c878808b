package confirmation

import (
	"context"

	"github.com/code-payments/chain-fuzzer/pkg/metrics"
)

const (
	confirmationRoundEventName       = "ConfirmationRound"
	confirmationSubmissionsEventName = "ConfirmationSubmissions"

	confirmationLatencyMetricName = "Confirmation/await_all_latency"
)

func recordRoundEvent(ctx context.Context, round uint64, queried, included int) {
	metrics.RecordEvent(ctx, confirmationRoundEventName, map[string]interface{}{
		"round":    round,
		"queried":  queried,
		"included": included,
	})
}

func recordSubmissionsEvent(ctx context.Context, count int) {
	metrics.RecordEvent(ctx, confirmationSubmissionsEventName, map[string]interface{}{
		"count": count,
	})
}
