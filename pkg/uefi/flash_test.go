package uefi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFlashImage wraps a BIOS region into a minimal flash image: a
// descriptor in the first 4K block, the BIOS region right after it.
func testFlashImage(t *testing.T, bios []byte) []byte {
	t.Helper()
	require.Zero(t, len(bios)%0x1000, "BIOS region must be block aligned")

	buf := bytes.Repeat([]byte{0xFF}, FlashDescriptorLength+len(bios))
	copy(buf[16:20], FlashSignature)

	// FLMAP0: regions at 0x40, FLMAP1: masters at 0x60.
	flmap := buf[20:]
	flmap[0] = 0x03
	flmap[1] = 1
	flmap[2] = 0x04
	flmap[3] = 4
	flmap[4] = 0x06
	flmap[5] = 3

	// Region table entry 0 is the BIOS region, starting at block 1.
	biosBlocks := uint16(len(bios) / RegionBlockSize)
	binary.LittleEndian.PutUint16(buf[0x44:], 1)
	binary.LittleEndian.PutUint16(buf[0x46:], biosBlocks)

	// Master table: BIOS master may read and write everything.
	for i := 0; i < FlashMasterSectionSize; i += 4 {
		binary.LittleEndian.PutUint16(buf[0x60+i:], 0)
		buf[0x60+i+2] = 0xFF
		buf[0x60+i+3] = 0xFF
	}

	copy(buf[FlashDescriptorLength:], bios)
	return buf
}

func TestFindSignature(t *testing.T) {
	t.Run("after the reset vector", func(t *testing.T) {
		buf := make([]byte, 0x40)
		copy(buf[16:20], FlashSignature)
		off, err := FindSignature(buf)
		require.NoError(t, err)
		assert.Equal(t, 20, off)
	})

	t.Run("at the start", func(t *testing.T) {
		buf := make([]byte, 0x40)
		copy(buf, FlashSignature)
		off, err := FindSignature(buf)
		require.NoError(t, err)
		assert.Equal(t, 4, off)
	})

	t.Run("absent", func(t *testing.T) {
		_, err := FindSignature(make([]byte, 0x40))
		assert.Error(t, err)
	})
}

func TestIsFlashImage(t *testing.T) {
	flash := testFlashImage(t, testVolume(t, 0x1000, 0xFF))
	assert.True(t, IsFlashImage(flash))
	assert.False(t, IsFlashImage(testVolume(t, 0x1000, 0xFF)))
}

func TestParseFlashImage(t *testing.T) {
	bios := testVolume(t, 0x2000, 0xFF)
	flash := testFlashImage(t, bios)

	img, err := ParseFlashImage(flash)
	require.NoError(t, err)
	require.NotNil(t, img.IFD.DescriptorMap)
	assert.Equal(t, uint8(4), img.IFD.DescriptorMap.NumberOfRegions)
	assert.Equal(t, uint(0x40), img.IFD.RegionStart)
	assert.Equal(t, uint(0x60), img.IFD.MasterStart)
	assert.Equal(t, uint8(0xFF), img.IFD.Master.BIOS.Read)

	start, end, err := img.BIOSBounds()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), start)
	assert.Equal(t, uint64(0x3000), end)

	fvs, err := img.BIOSVolumes()
	require.NoError(t, err)
	require.Len(t, fvs, 1)
	assert.Equal(t, uint64(0x1000), fvs[0].FVOffset)
	assert.Equal(t, uint64(0x2000), fvs[0].Length)
}

func TestBIOSBoundsClamped(t *testing.T) {
	bios := testVolume(t, 0x1000, 0xFF)
	flash := testFlashImage(t, bios)
	// Stretch the region limit past the actual dump.
	binary.LittleEndian.PutUint16(flash[0x46:], 0x20)

	img, err := ParseFlashImage(flash)
	require.NoError(t, err)
	start, end, err := img.BIOSBounds()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), start)
	assert.Equal(t, uint64(len(flash)), end)
}

func TestParseFlashDescriptorTooShort(t *testing.T) {
	_, err := ParseFlashDescriptor(make([]byte, 0x100))
	assert.Error(t, err)
}
