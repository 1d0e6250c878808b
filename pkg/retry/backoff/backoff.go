// Package backoff computes the delay between retry attempts.
package backoff

import (
	"math"
	"time"
)

// Strategy maps an attempt number, counted from 1, to the delay before the
// next attempt.
type Strategy func(attempts uint) time.Duration

// Constant waits the same interval after every attempt.
func Constant(interval time.Duration) Strategy {
	return func(uint) time.Duration {
		return interval
	}
}

// Linear waits baseDelay * attempts, e.g. 2s, 4s, 6s for a base of 2s.
func Linear(baseDelay time.Duration) Strategy {
	return func(attempts uint) time.Duration {
		return saturate(float64(baseDelay) * float64(attempts))
	}
}

// Exponential waits baseDelay * base^(attempts-1), e.g. 2s, 6s, 18s for a base
// delay of 2s and a base of 3.
func Exponential(baseDelay time.Duration, base float64) Strategy {
	return func(attempts uint) time.Duration {
		if attempts == 0 {
			attempts = 1
		}
		return saturate(float64(baseDelay) * math.Pow(base, float64(attempts-1)))
	}
}

// BinaryExponential doubles the delay after every attempt.
func BinaryExponential(baseDelay time.Duration) Strategy {
	return Exponential(baseDelay, 2)
}

// saturate converts nanos to a Duration, clamping at the largest one.
func saturate(nanos float64) time.Duration {
	if math.IsNaN(nanos) || nanos >= math.MaxInt64 {
		return math.MaxInt64
	}
	if nanos < 0 {
		return 0
	}
	return time.Duration(nanos)
}
