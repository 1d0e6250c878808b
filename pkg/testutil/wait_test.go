package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitFor(t *testing.T) {
	require.NoError(t, WaitFor(50*time.Millisecond, 25*time.Millisecond, func() bool {
		return true
	}))

	require.Error(t, WaitFor(50*time.Millisecond, 25*time.Millisecond, func() bool {
		return false
	}))

	require.Error(t, WaitFor(50*time.Millisecond, 100*time.Millisecond, func() bool {
		return true
	}))
}

func TestWaitFor_EventuallyTrue(t *testing.T) {
	var calls int
	require.NoError(t, WaitFor(time.Second, time.Millisecond, func() bool {
		calls++
		return calls == 3
	}))
	require.Equal(t, 3, calls)
}
