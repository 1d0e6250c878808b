package activation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/confirmation"
	"github.com/code-payments/chain-fuzzer/pkg/metrics"
)

const (
	metricsStructName = "activation.activator"
)

// IsActiveAccount reports whether the account has ever been funded or used.
// It's always evaluated against the live chain.
func IsActiveAccount(ctx context.Context, client chain.Client, account chain.Address) (bool, error) {
	balance, err := client.GetBalance(ctx, account)
	if err != nil {
		return false, errors.Wrapf(err, "error getting balance of %s", account)
	}
	if balance != 0 {
		return true, nil
	}

	seq, err := client.GetSeq(ctx, account)
	if err != nil {
		return false, errors.Wrapf(err, "error getting seq of %s", account)
	}
	return seq != 0, nil
}

// Error indicates the chain rejected one of the funding transactions.
type Error struct {
	cause *confirmation.InclusionError
}

func (e *Error) Error() string {
	return "cannot activate the account: " + e.cause.Hint
}

// Hint returns the chain's reason for rejecting the funding transaction.
func (e *Error) Hint() string {
	return e.cause.Hint
}

func (e *Error) Unwrap() error {
	return e.cause
}

type Params struct {
	Approvers  []chain.Address
	Payer      chain.Address
	Passphrase string
}

// Activator funds dormant accounts so that the chain recognizes them.
type Activator struct {
	log    *logrus.Entry
	conf   *conf
	client chain.Client
	engine *confirmation.Engine
}

func NewActivator(client chain.Client, engine *confirmation.Engine, configProvider ConfigProvider) *Activator {
	return &Activator{
		log:    logrus.StandardLogger().WithField("type", "activation/activator"),
		conf:   configProvider(),
		client: client,
		engine: engine,
	}
}

// ActivateApprovers sends a minimal payment from the payer to every dormant
// approver and waits for all of them to be included. It's a no-op when every
// approver is already active.
func (a *Activator) ActivateApprovers(ctx context.Context, params Params) error {
	log := a.log.WithFields(logrus.Fields{
		"method": "ActivateApprovers",
		"payer":  params.Payer.String(),
	})

	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ActivateApprovers")
	defer tracer.End()

	if a.conf.disableActivation.Get(ctx) {
		log.Debug("activation is disabled")
		return nil
	}

	dormant, err := a.findDormant(ctx, params.Approvers)
	if err != nil {
		tracer.OnError(err)
		return err
	}
	tracer.AddAttribute("dormant", len(dormant))
	if len(dormant) == 0 {
		log.Debug("all approvers are active")
		return nil
	}

	start := time.Now()

	// The payer may have transacted outside of this process, so its sequence
	// is read from the chain once for this batch. The engine keeps its local
	// sequence instead while the payer has transactions in flight.
	if !a.engine.Resync(params.Payer) {
		log.Debug("payer has transactions in flight, continuing its local sequence")
	}

	quantity := chain.Quantity(a.conf.fundingQuantity.Get(ctx))
	submissions := make([]confirmation.Submission, 0, len(dormant))
	for _, approver := range dormant {
		submissions = append(submissions, confirmation.Submission{
			Sender:      params.Payer,
			Passphrase:  params.Passphrase,
			Transaction: chain.NewPayTransaction(params.Payer, approver, quantity),
		})
	}

	_, err = a.engine.SubmitAndAwait(ctx, submissions)
	recordActivationEvent(ctx, len(params.Approvers), len(dormant), err == nil, time.Since(start))

	if inclusionErr, ok := confirmation.AsInclusionError(err); ok {
		log.WithError(err).Warn("approver activation was rejected")
		err = &Error{cause: inclusionErr}
	}
	if err != nil {
		tracer.OnError(err)
		return err
	}

	log.WithField("activated", len(dormant)).Info("activated dormant approvers")
	return nil
}

// findDormant checks every account concurrently and returns the dormant
// ones, in their original order.
func (a *Activator) findDormant(ctx context.Context, accounts []chain.Address) ([]chain.Address, error) {
	active := make([]bool, len(accounts))

	var g errgroup.Group
	for i, account := range accounts {
		g.Go(func() error {
			isActive, err := IsActiveAccount(ctx, a.client, account)
			if err != nil {
				return err
			}
			active[i] = isActive
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var dormant []chain.Address
	for i, account := range accounts {
		if !active[i] {
			dormant = append(dormant, account)
		}
	}
	return dormant, nil
}
