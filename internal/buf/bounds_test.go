package buf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOverflowSafe(t *testing.T) {
	sum, ok := AddOverflowSafe(10, 5)
	require.True(t, ok)
	assert.Equal(t, 15, sum)

	_, ok = AddOverflowSafe(math.MaxInt, 1)
	assert.False(t, ok)
	_, ok = AddOverflowSafe(math.MinInt, -1)
	assert.False(t, ok)
}

func TestMulOverflowSafe(t *testing.T) {
	p, ok := MulOverflowSafe(1<<20, 64)
	require.True(t, ok)
	assert.Equal(t, 64<<20, p)

	p, ok = MulOverflowSafe(0, math.MaxInt)
	require.True(t, ok)
	assert.Zero(t, p)

	_, ok = MulOverflowSafe(math.MaxInt/2, 3)
	assert.False(t, ok)
	_, ok = MulOverflowSafe(-1, 8)
	assert.False(t, ok)
}

func TestCheckTable(t *testing.T) {
	end, err := CheckTable(0x5000, 0x3000, 128, 64)
	require.NoError(t, err)
	assert.Equal(t, 0x5000, end)

	_, err = CheckTable(0x5000, 0x3000, 129, 64)
	require.ErrorIs(t, err, ErrOutOfBounds)

	_, err = CheckTable(0x5000, 0x3000, math.MaxInt/2, 64)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = CheckTable(0x5000, math.MaxInt-8, 1, 64)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = CheckTable(0x5000, -1, 1, 64)
	require.ErrorIs(t, err, ErrOutOfBounds)
}
