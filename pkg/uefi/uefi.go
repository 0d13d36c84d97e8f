// Package uefi parses the on-flash structures of a UEFI firmware image:
// the Intel flash descriptor, firmware volumes, FFS files and sections.
// Parsed objects are views into the caller's buffer, they never copy the
// underlying bytes.
package uefi

import (
	"fmt"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
)

// FVGUIDs maps the known filesystem GUIDs to human readable names.
var FVGUIDs = map[guid.GUID]string{
	*FFS1:      "FFS1",
	*FFS2:      "FFS2",
	*FFS3:      "FFS3",
	*EVSA:      "NVRAM_EVSA",
	*NVAR:      "NVRAM_NVAR",
	*EVSA2:     "NVRAM_EVSA2",
	*AppleBoot: "APPLE_BOOT",
	*PFH1:      "PFH1",
	*PFH2:      "PFH2",
}

// Stock GUIDs
var (
	FFS1      = guid.MustParse("7A9354D9-0468-444A-81CE-0BF617D890DF")
	FFS2      = guid.MustParse("8C8CE578-8A3D-4F1C-9935-896185C32DD3")
	FFS3      = guid.MustParse("5473C07A-3DCB-4DCA-BD6F-1E9689E7349A")
	EVSA      = guid.MustParse("FFF12B8D-7696-4C8B-A985-2747075B4F50")
	NVAR      = guid.MustParse("CEF5B9A3-476D-497F-9FDC-E98143E0422C")
	EVSA2     = guid.MustParse("00504624-8A59-4EEB-BD0F-6B36E96128E0")
	AppleBoot = guid.MustParse("04ADEEAD-61FF-4D31-B6BA-64F8BF901F5A")
	PFH1      = guid.MustParse("16B45DA2-7D70-4AEA-A58D-760E9ECB841D")
	PFH2      = guid.MustParse("E360BDBA-C3CE-46BE-8F37-B231E5CB9F35")

	// ZeroGUID is the zeroed out GUID seen in erased regions of
	// zero-polarity volumes.
	ZeroGUID = guid.MustParse("00000000-0000-0000-0000-000000000000")
	// FFGUID is the all 0xFF GUID seen in erased regions of one-polarity
	// volumes.
	FFGUID = guid.MustParse("FFFFFFFF-FFFF-FFFF-FFFF-FFFFFFFFFFFF")
)

// SupportedFS reports whether files inside a volume with the given
// filesystem GUID can be walked.
func SupportedFS(fs guid.GUID) bool {
	return fs == *FFS1 || fs == *FFS2 || fs == *FFS3
}

// Checksum8 computes the 8-bit sum of the buffer. Structures carrying an
// 8-bit checksum store the value that makes this sum come out zero.
func Checksum8(buf []byte) uint8 {
	var sum uint8
	for _, val := range buf {
		sum += val
	}
	return sum
}

// Checksum16 computes the 16-bit little endian word sum of the buffer.
// The buffer length must be even.
func Checksum16(buf []byte) (uint16, error) {
	length := len(buf)
	if length%2 != 0 {
		return 0, fmt.Errorf("checksum16 buffer length must be even, got %#x", length)
	}
	var sum uint16
	for i := 0; i < length; i += 2 {
		sum += uint16(buf[i]) | uint16(buf[i+1])<<8
	}
	return sum, nil
}

// Align4 rounds up to the next 4 byte boundary.
func Align4(val uint64) uint64 {
	return (val + 3) &^ uint64(3)
}

// Align8 rounds up to the next 8 byte boundary.
func Align8(val uint64) uint64 {
	return (val + 7) &^ uint64(7)
}

// Read3Size converts a 3 byte little endian file size into a uint64.
func Read3Size(size [3]uint8) uint64 {
	return uint64(size[0]) | uint64(size[1])<<8 | uint64(size[2])<<16
}

// Write3Size converts a size into its 3 byte little endian encoding.
// Sizes that do not fit are written as 0xFFFFFF, which marks the file as
// using the extended size field.
func Write3Size(size uint64) [3]uint8 {
	if size >= 0xFFFFFF {
		return [3]uint8{0xFF, 0xFF, 0xFF}
	}
	return [3]uint8{uint8(size), uint8(size >> 8), uint8(size >> 16)}
}

// isErased reports whether every byte of the buffer holds the volume's
// erased-state value.
func isErased(buf []byte, polarity uint8) bool {
	for _, b := range buf {
		if b != polarity {
			return false
		}
	}
	return true
}
