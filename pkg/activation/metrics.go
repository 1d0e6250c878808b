package activation

import (
	"context"
	"time"

	"github.com/code-payments/chain-fuzzer/pkg/metrics"
)

const (
	accountActivationEventName = "AccountActivation"
)

func recordActivationEvent(ctx context.Context, approvers, dormant int, success bool, elapsed time.Duration) {
	metrics.RecordEvent(ctx, accountActivationEventName, map[string]interface{}{
		"approvers":  approvers,
		"dormant":    dormant,
		"success":    success,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}
