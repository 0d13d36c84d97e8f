package uefi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum8(t *testing.T) {
	for _, tc := range []struct {
		name string
		buf  []byte
		want uint8
	}{
		{"empty", nil, 0},
		{"single", []byte{0x42}, 0x42},
		{"wraps", []byte{0xFF, 0x02}, 0x01},
		{"sums to zero", []byte{0x10, 0x20, 0xD0}, 0x00},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Checksum8(tc.buf))
		})
	}
}

func TestChecksum16(t *testing.T) {
	for _, tc := range []struct {
		name string
		buf  []byte
		want uint16
	}{
		{"empty", nil, 0},
		{"one word", []byte{0x34, 0x12}, 0x1234},
		{"wraps", []byte{0xFF, 0xFF, 0x03, 0x00}, 0x0002},
		{"sums to zero", []byte{0x00, 0x80, 0x00, 0x80}, 0x0000},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sum, err := Checksum16(tc.buf)
			require.NoError(t, err)
			assert.Equal(t, tc.want, sum)
		})
	}

	t.Run("odd length", func(t *testing.T) {
		_, err := Checksum16([]byte{0x01})
		assert.Error(t, err)
	})
}

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(0), Align8(0))
	assert.Equal(t, uint64(8), Align8(1))
	assert.Equal(t, uint64(8), Align8(8))
	assert.Equal(t, uint64(16), Align8(9))
	assert.Equal(t, uint64(0), Align4(0))
	assert.Equal(t, uint64(4), Align4(3))
	assert.Equal(t, uint64(4), Align4(4))
	assert.Equal(t, uint64(8), Align4(5))
}

func TestThreeByteSize(t *testing.T) {
	for _, tc := range []struct {
		name  string
		size  uint64
		bytes [3]uint8
	}{
		{"zero", 0, [3]uint8{0, 0, 0}},
		{"small", 0x123456, [3]uint8{0x56, 0x34, 0x12}},
		{"max encodable", 0xFFFFFE, [3]uint8{0xFE, 0xFF, 0xFF}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.bytes, Write3Size(tc.size))
			assert.Equal(t, tc.size, Read3Size(tc.bytes))
		})
	}

	t.Run("overflow clamps to the escape value", func(t *testing.T) {
		assert.Equal(t, [3]uint8{0xFF, 0xFF, 0xFF}, Write3Size(0xFFFFFF))
		assert.Equal(t, [3]uint8{0xFF, 0xFF, 0xFF}, Write3Size(0x1000000))
	})
}

func TestIsErased(t *testing.T) {
	assert.True(t, isErased([]byte{0xFF, 0xFF}, 0xFF))
	assert.True(t, isErased([]byte{0x00, 0x00}, 0x00))
	assert.True(t, isErased(nil, 0xFF))
	assert.False(t, isErased([]byte{0xFF, 0x00}, 0xFF))
	assert.False(t, isErased([]byte{0xFF}, 0x00))
}
