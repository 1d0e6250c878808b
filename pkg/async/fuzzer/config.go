package async_fuzzer

import (
	"github.com/code-payments/chain-fuzzer/pkg/config"
	"github.com/code-payments/chain-fuzzer/pkg/config/env"
	"github.com/code-payments/chain-fuzzer/pkg/config/memory"
	"github.com/code-payments/chain-fuzzer/pkg/config/wrapper"
)

const (
	envConfigPrefix = "FUZZER_SERVICE_"

	// Zero runs until the service is stopped
	MaxRoundsConfigEnvName = envConfigPrefix + "MAX_ROUNDS"
	defaultMaxRounds       = 0

	DisableFuzzingConfigEnvName = envConfigPrefix + "DISABLE_FUZZING"
	defaultDisableFuzzing       = false
)

type conf struct {
	maxRounds      config.Uint64
	disableFuzzing config.Bool
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			maxRounds:      env.NewUint64Config(MaxRoundsConfigEnvName, defaultMaxRounds),
			disableFuzzing: env.NewBoolConfig(DisableFuzzingConfigEnvName, defaultDisableFuzzing),
		}
	}
}

type testOverrides struct {
	maxRounds      uint64
	disableFuzzing bool
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			maxRounds:      wrapper.NewUint64Config(memory.NewConfig(overrides.maxRounds), defaultMaxRounds),
			disableFuzzing: wrapper.NewBoolConfig(memory.NewConfig(overrides.disableFuzzing), defaultDisableFuzzing),
		}
	}
}
