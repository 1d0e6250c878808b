package async_fuzzer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/chain-fuzzer/pkg/async"
)

var errMaxRoundsReached = errors.New("max rounds reached")

type service struct {
	log    *logrus.Entry
	conf   *conf
	runner *Runner

	metricsMu sync.Mutex
	rounds    uint64
	outcomes  map[Outcome]uint64
}

// New returns a service that runs a fuzzing round per interval. A round that
// contradicts its scenario's expectation stops the service and is returned by
// Start.
func New(runner *Runner, configProvider ConfigProvider) async.Service {
	return &service{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"service": "fuzzer",
			"run_id":  runner.RunID(),
		}),
		conf:     configProvider(),
		runner:   runner,
		outcomes: make(map[Outcome]uint64),
	}
}

func (p *service) Start(ctx context.Context, interval time.Duration) error {
	workerErr := make(chan error, 1)

	go func() {
		err := p.fuzzWorker(ctx, interval)
		if err != nil && err != context.Canceled && err != errMaxRoundsReached {
			p.log.WithError(err).Warn("fuzzing loop terminated unexpectedly")
		}
		workerErr <- err
	}()

	go func() {
		err := p.metricsGaugeWorker(ctx)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("fuzzer metrics gauge loop terminated unexpectedly")
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-workerErr:
		if err == errMaxRoundsReached {
			p.log.WithField("rounds", p.getRounds()).Info("fuzzing finished")
			return nil
		}
		return err
	}
}

func (p *service) recordRound(outcome Outcome) {
	p.metricsMu.Lock()
	p.rounds++
	p.outcomes[outcome]++
	p.metricsMu.Unlock()
}

func (p *service) getRounds() uint64 {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()

	return p.rounds
}

// drainOutcomes returns the outcome counts since the last call
func (p *service) drainOutcomes() map[Outcome]uint64 {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()

	res := p.outcomes
	p.outcomes = make(map[Outcome]uint64)
	return res
}
