package pointer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTo(t *testing.T) {
	value := "gold"
	p := To(value)
	require.NotNil(t, p)
	assert.Equal(t, "gold", *p)
	assert.NotSame(t, &value, p)
}

func TestCopy(t *testing.T) {
	assert.Nil(t, Copy[int](nil))

	original := To(42)
	copied := Copy(original)
	require.NotNil(t, copied)
	assert.Equal(t, 42, *copied)

	*original = 7
	assert.Equal(t, 42, *copied)
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "default", *OrDefault(nil, "default"))
	assert.Equal(t, "value", *OrDefault(To("value"), "default"))
}

func TestIfValid(t *testing.T) {
	assert.Nil(t, IfValid(false, "value"))
	assert.Equal(t, "value", *IfValid(true, "value"))
}

func TestValueOrDefault(t *testing.T) {
	assert.Equal(t, uint64(5), ValueOrDefault(nil, uint64(5)))
	assert.Equal(t, uint64(9), ValueOrDefault(To(uint64(9)), 5))
}
