package harness

import (
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/chain-fuzzer/pkg/app"
	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/netutil"
)

// Config is the harness section of the process config.
type Config struct {
	RPCEndpoint       string  `mapstructure:"rpc_endpoint"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`

	// Passphrase unlocks every account the harness signs for
	Passphrase string `mapstructure:"passphrase"`

	// When set, transactions are signed by the node's key manager. Otherwise
	// keys are loaded from KeyFile, one base58 private key per line.
	UseNodeSigner bool   `mapstructure:"use_node_signer"`
	KeyFile       string `mapstructure:"key_file"`

	Regulator     chain.Address   `mapstructure:"regulator"`
	RegulatorAlt  chain.Address   `mapstructure:"regulator_alt"`
	AssetAccounts []chain.Address `mapstructure:"asset_accounts"`

	Approvers []chain.Address `mapstructure:"approvers"`
	Payer     chain.Address   `mapstructure:"payer"`

	// Cron schedule re-activating approvers after startup. Empty disables it.
	ActivationSchedule string `mapstructure:"activation_schedule"`

	FuzzInterval time.Duration `mapstructure:"fuzz_interval"`

	// Zero seeds from the current time
	RngSeed int64 `mapstructure:"rng_seed"`

	Snapshot Snapshot `mapstructure:"snapshot"`
}

var defaultConfig = Config{
	RequestsPerSecond: 10,
	FuzzInterval:      time.Second,
}

// LoadConfig decodes and validates the harness config.
func LoadConfig(config app.Config) (*Config, error) {
	decoded := defaultConfig
	if err := app.DecodeConfig(config, &decoded); err != nil {
		return nil, err
	}

	if err := decoded.Validate(); err != nil {
		return nil, err
	}
	return &decoded, nil
}

func (c *Config) scenarioAccounts() []chain.Address {
	return append([]chain.Address{c.Regulator, c.RegulatorAlt}, c.AssetAccounts...)
}

func (c *Config) Validate() error {
	if len(c.RPCEndpoint) == 0 {
		return errors.New("rpc_endpoint is required")
	}
	if err := netutil.ValidateHttpUrl(c.RPCEndpoint, false); err != nil {
		return errors.Wrap(err, "invalid rpc_endpoint")
	}
	if !c.UseNodeSigner && len(c.KeyFile) == 0 {
		return errors.New("key_file is required unless use_node_signer is set")
	}
	if c.FuzzInterval <= 0 {
		return errors.New("fuzz_interval must be positive")
	}

	if err := c.Regulator.Validate(); err != nil {
		return errors.Wrap(err, "invalid regulator")
	}
	if err := c.RegulatorAlt.Validate(); err != nil {
		return errors.Wrap(err, "invalid regulator_alt")
	}
	if c.Regulator == c.RegulatorAlt {
		return errors.New("regulator and regulator_alt must differ")
	}
	for _, account := range c.AssetAccounts {
		if err := account.Validate(); err != nil {
			return errors.Wrap(err, "invalid asset account")
		}
	}

	if len(c.Approvers) > 0 {
		if err := c.Payer.Validate(); err != nil {
			return errors.Wrap(err, "invalid payer")
		}
		for _, approver := range c.Approvers {
			if err := approver.Validate(); err != nil {
				return errors.Wrap(err, "invalid approver")
			}
		}

		// Activation runs alongside fuzz rounds, so the payer's sequence must
		// not be shared with any account scenarios send from
		for _, account := range c.scenarioAccounts() {
			if c.Payer == account {
				return errors.Errorf("payer %s must not be a regulator or asset account", c.Payer)
			}
		}
	}

	return c.Snapshot.Validate()
}
