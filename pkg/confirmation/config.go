package confirmation

import (
	"time"

	"github.com/code-payments/chain-fuzzer/pkg/config"
	"github.com/code-payments/chain-fuzzer/pkg/config/env"
	"github.com/code-payments/chain-fuzzer/pkg/config/memory"
	"github.com/code-payments/chain-fuzzer/pkg/config/wrapper"
)

const (
	envConfigPrefix = "CONFIRMATION_ENGINE_"

	PollIntervalConfigEnvName = envConfigPrefix + "POLL_INTERVAL"
	defaultPollInterval       = time.Second

	FeeConfigEnvName = envConfigPrefix + "FEE"
	defaultFee       = 100

	// Zero disables the bound
	MaxRoundsConfigEnvName = envConfigPrefix + "MAX_ROUNDS"
	defaultMaxRounds       = 0

	// Zero disables the bound
	DeadlineConfigEnvName = envConfigPrefix + "DEADLINE"
	defaultDeadline       = 0
)

type conf struct {
	pollInterval config.Duration
	fee          config.Uint64
	maxRounds    config.Uint64
	deadline     config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			pollInterval: env.NewDurationConfig(PollIntervalConfigEnvName, defaultPollInterval),
			fee:          env.NewUint64Config(FeeConfigEnvName, defaultFee),
			maxRounds:    env.NewUint64Config(MaxRoundsConfigEnvName, defaultMaxRounds),
			deadline:     env.NewDurationConfig(DeadlineConfigEnvName, defaultDeadline),
		}
	}
}

type testOverrides struct {
	pollInterval time.Duration
	fee          uint64
	maxRounds    uint64
	deadline     time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			pollInterval: wrapper.NewDurationConfig(memory.NewConfig(overrides.pollInterval), defaultPollInterval),
			fee:          wrapper.NewUint64Config(memory.NewConfig(overrides.fee), defaultFee),
			maxRounds:    wrapper.NewUint64Config(memory.NewConfig(overrides.maxRounds), defaultMaxRounds),
			deadline:     wrapper.NewDurationConfig(memory.NewConfig(overrides.deadline), defaultDeadline),
		}
	}
}
