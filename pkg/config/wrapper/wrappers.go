package wrapper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/chain-fuzzer/pkg/config"
)

// ErrUnsuportedConversion indicates the wrapper does not implement conversion from the source type
var ErrUnsuportedConversion = errors.New("config: wrapper conversion from source type not implemented")

// Converter turns a raw config value into T. Raw values are either already of
// type T, or the []byte read from a string based source like the environment.
type Converter[T any] func(raw interface{}) (T, error)

// ValueConfig is a utility wrapper for a typed config
type ValueConfig[T any] struct {
	override     config.Config
	defaultValue T
	convert      Converter[T]

	stateMu   sync.RWMutex
	lastValue T
}

// NewValueConfig returns a typed config utility wrapper
func NewValueConfig[T any](override config.Config, defaultValue T, convert Converter[T]) *ValueConfig[T] {
	return &ValueConfig[T]{
		override:     override,
		defaultValue: defaultValue,
		convert:      convert,
		lastValue:    defaultValue,
	}
}

// GetSafe gets a config value and propagates any errors that arise. A best-effort
// attempt is made to return the last known value
func (c *ValueConfig[T]) GetSafe(ctx context.Context) (T, error) {
	override, err := c.override.Get(ctx)

	c.stateMu.RLock()
	lastValue := c.lastValue
	c.stateMu.RUnlock()

	if err == config.ErrNoValue {
		c.setLastValue(c.defaultValue)
		return c.defaultValue, nil
	} else if err != nil {
		return lastValue, err
	}

	newValue, err := c.convert(override)
	if err != nil {
		return lastValue, err
	}

	c.setLastValue(newValue)
	return newValue, nil
}

// Get is a wrapper for GetSafe that ignores the returned error
func (c *ValueConfig[T]) Get(ctx context.Context) T {
	val, _ := c.GetSafe(ctx)
	return val
}

// Shutdown signals the config to stop all underlying resources
func (c *ValueConfig[T]) Shutdown() {
	c.override.Shutdown()
}

func (c *ValueConfig[T]) setLastValue(val T) {
	c.stateMu.Lock()
	c.lastValue = val
	c.stateMu.Unlock()
}

// NewBoolConfig returns a new bool config utility wrapper
func NewBoolConfig(override config.Config, defaultValue bool) config.Bool {
	return NewValueConfig(override, defaultValue, parsing(strconv.ParseBool))
}

// NewStringConfig returns a new string config utility wrapper
func NewStringConfig(override config.Config, defaultValue string) config.String {
	return NewValueConfig(override, defaultValue, parsing(func(s string) (string, error) {
		return s, nil
	}))
}

// NewDurationConfig returns a new time.Duration config utility wrapper
func NewDurationConfig(override config.Config, defaultValue time.Duration) config.Duration {
	return NewValueConfig(override, defaultValue, func(raw interface{}) (time.Duration, error) {
		switch raw := raw.(type) {
		case int64:
			return time.Duration(raw), nil
		case int:
			return time.Duration(raw), nil
		}
		return parsing(time.ParseDuration)(raw)
	})
}

// NewFloat64Config returns a new float64 config utility wrapper
func NewFloat64Config(override config.Config, defaultValue float64) config.Float64 {
	return NewValueConfig(override, defaultValue, parsing(func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}))
}

// NewInt64Config returns a new int64 config utility wrapper
func NewInt64Config(override config.Config, defaultValue int64) config.Int64 {
	return NewValueConfig(override, defaultValue, func(raw interface{}) (int64, error) {
		if raw, ok := raw.(int); ok {
			return int64(raw), nil
		}
		return parsing(func(s string) (int64, error) {
			return strconv.ParseInt(s, 10, 64)
		})(raw)
	})
}

// NewUint64Config returns a new uint64 config utility wrapper
func NewUint64Config(override config.Config, defaultValue uint64) config.Uint64 {
	return NewValueConfig(override, defaultValue, func(raw interface{}) (uint64, error) {
		if raw, ok := raw.(int); ok && raw >= 0 {
			return uint64(raw), nil
		}
		return parsing(func(s string) (uint64, error) {
			return strconv.ParseUint(s, 10, 64)
		})(raw)
	})
}

// parsing builds a Converter that passes through values already of type T and
// parses []byte values.
func parsing[T any](parse func(string) (T, error)) Converter[T] {
	return func(raw interface{}) (T, error) {
		switch raw := raw.(type) {
		case T:
			return raw, nil
		case []byte:
			return parse(string(raw))
		default:
			var zero T
			return zero, ErrUnsuportedConversion
		}
	}
}
