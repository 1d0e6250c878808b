package harness

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/chain-fuzzer/pkg/activation"
	"github.com/code-payments/chain-fuzzer/pkg/app"
	async_fuzzer "github.com/code-payments/chain-fuzzer/pkg/async/fuzzer"
	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/confirmation"
	"github.com/code-payments/chain-fuzzer/pkg/metrics"
	"github.com/code-payments/chain-fuzzer/pkg/osutil"
	"github.com/code-payments/chain-fuzzer/pkg/scenario"
)

type harness struct {
	log *logrus.Entry

	newClient func(config *Config) chain.Client

	ctx    context.Context
	cancel context.CancelFunc

	cron       *cron.Cron
	workers    sync.WaitGroup
	shutdownCh chan struct{}
	stopOnce   sync.Once
}

// New returns the fuzzing harness app.
func New() app.App {
	return newHarness(func(config *Config) chain.Client {
		return chain.NewRPCClient(config.RPCEndpoint, config.RequestsPerSecond)
	})
}

func newHarness(newClient func(config *Config) chain.Client) *harness {
	return &harness{
		log:        logrus.StandardLogger().WithField("type", "harness"),
		newClient:  newClient,
		shutdownCh: make(chan struct{}),
	}
}

// Init implements app.App.Init.
func (h *harness) Init(appConfig app.Config, metricsProvider *newrelic.Application) error {
	config, err := LoadConfig(appConfig)
	if err != nil {
		return err
	}

	h.ctx, h.cancel = context.WithCancel(metrics.NewContext(context.Background(), metricsProvider))

	client := h.newClient(config)

	var signer chain.MessageSigner
	if config.UseNodeSigner {
		nodeSigner, ok := client.(chain.MessageSigner)
		if !ok {
			return errors.New("client cannot sign messages")
		}
		signer = nodeSigner
	} else {
		keys, err := LoadKeyStore(config.KeyFile, config.Passphrase)
		if err != nil {
			return errors.Wrap(err, "error loading keys")
		}
		signer = keys
	}

	confirmations := confirmation.NewEngine(client, signer, confirmation.WithEnvConfigs())

	activator := activation.NewActivator(client, confirmations, activation.WithEnvConfigs())
	activationParams := activation.Params{
		Approvers:  config.Approvers,
		Payer:      config.Payer,
		Passphrase: config.Passphrase,
	}
	if len(config.Approvers) > 0 {
		if err := activator.ActivateApprovers(h.ctx, activationParams); err != nil {
			return errors.Wrap(err, "error activating approvers")
		}
	}

	if len(config.Approvers) > 0 && len(config.ActivationSchedule) > 0 {
		h.cron = cron.New(cron.WithLocation(time.UTC))
		_, err := h.cron.AddFunc(config.ActivationSchedule, func() {
			if err := activator.ActivateApprovers(h.ctx, activationParams); err != nil {
				h.log.WithError(err).Warn("failure re-activating approvers")
			}
		})
		if err != nil {
			return errors.Wrap(err, "invalid activation schedule")
		}
		h.cron.Start()
	}

	seed := config.RngSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	scenarios, err := scenario.NewEngine(
		scenario.DefaultTable(),
		scenario.Accounts{
			Regulator:     config.Regulator,
			RegulatorAlt:  config.RegulatorAlt,
			AssetAccounts: config.AssetAccounts,
		},
		rand.New(rand.NewSource(seed)),
	)
	if err != nil {
		return err
	}

	runner := async_fuzzer.NewRunner(scenarios, confirmations, config.Snapshot.State(), config.Passphrase)
	service := async_fuzzer.New(runner, async_fuzzer.WithEnvConfigs())

	h.log.WithFields(logrus.Fields{
		"run_id":       runner.RunID(),
		"seed":         seed,
		"total_memory": osutil.GetTotalMemory(),
	}).Info("starting fuzzer")

	h.workers.Add(1)
	go func() {
		defer h.workers.Done()
		defer close(h.shutdownCh)

		err := service.Start(h.ctx, config.FuzzInterval)
		if err != nil && err != context.Canceled {
			h.log.WithError(err).Error("fuzzer stopped")
		}
	}()

	return nil
}

// ShutdownChan implements app.App.ShutdownChan.
func (h *harness) ShutdownChan() <-chan struct{} {
	return h.shutdownCh
}

// Stop implements app.App.Stop.
func (h *harness) Stop() {
	h.stopOnce.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
		if h.cron != nil {
			<-h.cron.Stop().Done()
		}
		h.workers.Wait()
	})
}
