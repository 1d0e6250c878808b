package metrics

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type contextKey struct{}

// NewRelicContextKey is the context key holding the *newrelic.Application
var NewRelicContextKey = contextKey{}

// NewContext returns a copy of ctx carrying the New Relic application
func NewContext(ctx context.Context, app *newrelic.Application) context.Context {
	return context.WithValue(ctx, NewRelicContextKey, app)
}

// FromContext returns the New Relic application carried by ctx, if any
func FromContext(ctx context.Context) (*newrelic.Application, bool) {
	app, ok := ctx.Value(NewRelicContextKey).(*newrelic.Application)
	return app, ok && app != nil
}

// StartTransaction starts a New Relic transaction named name, when an
// application is available, and returns a context carrying it. The returned
// func ends the transaction and notices err when non-nil.
func StartTransaction(ctx context.Context, name string) (context.Context, func(err error)) {
	app, ok := FromContext(ctx)
	if !ok {
		return ctx, func(error) {}
	}

	txn := app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), func(err error) {
		if err != nil {
			txn.NoticeError(err)
		}
		txn.End()
	}
}

// RecordCount records a count metric
func RecordCount(ctx context.Context, metricName string, count uint64) {
	if nr, ok := FromContext(ctx); ok {
		nr.RecordCustomMetric(metricName, float64(count))
	}
}

// RecordDuration records a duration metric in milliseconds
func RecordDuration(ctx context.Context, metricName string, duration time.Duration) {
	if nr, ok := FromContext(ctx); ok {
		nr.RecordCustomMetric(metricName, float64(duration/time.Millisecond))
	}
}
