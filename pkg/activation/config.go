package activation

import (
	"github.com/code-payments/chain-fuzzer/pkg/config"
	"github.com/code-payments/chain-fuzzer/pkg/config/env"
	"github.com/code-payments/chain-fuzzer/pkg/config/memory"
	"github.com/code-payments/chain-fuzzer/pkg/config/wrapper"
)

const (
	envConfigPrefix = "ACTIVATION_SERVICE_"

	FundingQuantityConfigEnvName = envConfigPrefix + "FUNDING_QUANTITY"
	defaultFundingQuantity       = 1

	DisableActivationConfigEnvName = envConfigPrefix + "DISABLE_ACTIVATION"
	defaultDisableActivation       = false
)

type conf struct {
	fundingQuantity   config.Uint64
	disableActivation config.Bool
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			fundingQuantity:   env.NewUint64Config(FundingQuantityConfigEnvName, defaultFundingQuantity),
			disableActivation: env.NewBoolConfig(DisableActivationConfigEnvName, defaultDisableActivation),
		}
	}
}

type testOverrides struct {
	fundingQuantity   uint64
	disableActivation bool
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			fundingQuantity:   wrapper.NewUint64Config(memory.NewConfig(overrides.fundingQuantity), defaultFundingQuantity),
			disableActivation: wrapper.NewBoolConfig(memory.NewConfig(overrides.disableActivation), defaultDisableActivation),
		}
	}
}
