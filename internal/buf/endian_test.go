package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndianHelpers(t *testing.T) {
	data := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

	assert.Equal(t, uint32(0x67452301), U32LE(data))
	assert.Equal(t, uint64(0xefcdab8967452301), U64LE(data))

	short := []byte{0xAA, 0xBB, 0xCC}
	assert.Zero(t, U32LE(short))
	assert.Zero(t, U64LE(data[:7]))
}
