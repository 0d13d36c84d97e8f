package uefi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
	"github.com/tinytoy-sec/FwPatcher/pkg/log"
)

const (
	// FirmwareVolumeFixedHeaderSize is the size of the header struct up
	// to and including the revision field.
	FirmwareVolumeFixedHeaderSize = 56
	// FirmwareVolumeMinSize is the fixed header plus the terminating
	// block map entry.
	FirmwareVolumeMinSize = FirmwareVolumeFixedHeaderSize + 8
	// FirmwareVolumeExtHeaderMinSize is the size of the extended header
	// without its optional entries.
	FirmwareVolumeExtHeaderMinSize = 20

	// FVSignature is "_FVH" in little endian.
	FVSignature = 0x4856465F

	// FVErasePolarityAttr is the attribute bit that selects the erased
	// state of the volume's free space.
	FVErasePolarityAttr = 0x800
)

// Block describes one entry of the volume block map.
type Block struct {
	Count uint32
	Size  uint32
}

// FirmwareVolumeFixedHeader mirrors EFI_FIRMWARE_VOLUME_HEADER up to the
// block map.
type FirmwareVolumeFixedHeader struct {
	ZeroVector      [16]uint8
	FileSystemGUID  guid.GUID
	Length          uint64
	Signature       uint32
	Attributes      uint32
	HeaderLen       uint16
	Checksum        uint16
	ExtHeaderOffset uint16
	Reserved        uint8
	Revision        uint8
}

// FirmwareVolumeExtHeader mirrors EFI_FIRMWARE_VOLUME_EXT_HEADER.
type FirmwareVolumeExtHeader struct {
	FVName        guid.GUID
	ExtHeaderSize uint32
}

// FirmwareVolume is a parsed firmware volume. It is a view: buf aliases
// the image buffer it was parsed from, so edits through the view are
// edits of the image.
type FirmwareVolume struct {
	FirmwareVolumeFixedHeader
	Blocks []Block
	FirmwareVolumeExtHeader

	// DataOffset is the offset of the first file, relative to the start
	// of the volume.
	DataOffset uint64
	// FVOffset is the offset of the volume inside the enclosing image.
	FVOffset uint64
	// FVType names the filesystem identified by FileSystemGUID.
	FVType string
	// FreeSpace is the length of the erased run after the last file.
	// It is only known after Files has walked the volume.
	FreeSpace uint64

	buf []byte
}

// ParseFirmwareVolume validates the volume header at the start of data
// and returns a view covering exactly Length bytes of it. fvOffset is
// the offset of data within the enclosing image and is only recorded
// for display.
func ParseFirmwareVolume(data []byte, fvOffset uint64) (*FirmwareVolume, error) {
	fv := FirmwareVolume{FVOffset: fvOffset}

	if len(data) < FirmwareVolumeMinSize {
		return nil, fmt.Errorf("%#x bytes is too short for a firmware volume header", len(data))
	}
	reader := bytes.NewReader(data)
	if err := binary.Read(reader, binary.LittleEndian, &fv.FirmwareVolumeFixedHeader); err != nil {
		return nil, err
	}
	if fv.Signature != FVSignature {
		return nil, fmt.Errorf("signature %#08x at offset %#x is not _FVH", fv.Signature, fvOffset)
	}
	if fv.HeaderLen < FirmwareVolumeMinSize {
		return nil, fmt.Errorf("header length %#x is shorter than the fixed header", fv.HeaderLen)
	}
	if fv.HeaderLen%2 != 0 {
		return nil, fmt.Errorf("header length %#x is not a multiple of two", fv.HeaderLen)
	}
	if uint64(fv.HeaderLen) > fv.Length {
		return nil, fmt.Errorf("header length %#x exceeds volume length %#x", fv.HeaderLen, fv.Length)
	}
	if fv.Length > uint64(len(data)) {
		return nil, fmt.Errorf("volume length %#x overruns the buffer, %#x bytes remain", fv.Length, len(data))
	}

	// The header checksum covers everything up to and including the
	// block map and must sum to zero.
	sum, err := Checksum16(data[:fv.HeaderLen])
	if err != nil {
		return nil, err
	}
	if sum != 0 {
		return nil, fmt.Errorf("volume header checksum is %#04x, want zero", sum)
	}

	// The block map fills the space between the fixed header and
	// HeaderLen and ends with a zero entry.
	for {
		consumed := uint64(len(data)) - uint64(reader.Len())
		if consumed+8 > uint64(fv.HeaderLen) {
			return nil, fmt.Errorf("block map is not terminated within header length %#x", fv.HeaderLen)
		}
		var block Block
		if err := binary.Read(reader, binary.LittleEndian, &block); err != nil {
			return nil, err
		}
		if block.Count == 0 && block.Size == 0 {
			break
		}
		fv.Blocks = append(fv.Blocks, block)
	}
	var mapped uint64
	for _, block := range fv.Blocks {
		mapped += uint64(block.Count) * uint64(block.Size)
	}
	if mapped != fv.Length {
		log.Warnf("block map covers %#x bytes but the volume is %#x bytes long", mapped, fv.Length)
	}

	fv.DataOffset = Align8(uint64(fv.HeaderLen))
	if fv.ExtHeaderOffset != 0 {
		start := uint64(fv.ExtHeaderOffset)
		if start+FirmwareVolumeExtHeaderMinSize > fv.Length {
			return nil, fmt.Errorf("extended header at %#x overruns the volume", start)
		}
		r := bytes.NewReader(data[start:])
		if err := binary.Read(r, binary.LittleEndian, &fv.FirmwareVolumeExtHeader); err != nil {
			return nil, err
		}
		end := start + uint64(fv.ExtHeaderSize)
		if uint64(fv.ExtHeaderSize) < FirmwareVolumeExtHeaderMinSize || end > fv.Length {
			return nil, fmt.Errorf("extended header size %#x at %#x overruns the volume", fv.ExtHeaderSize, start)
		}
		if end > fv.DataOffset {
			fv.DataOffset = Align8(end)
		}
	}
	if fv.DataOffset > fv.Length {
		return nil, fmt.Errorf("first file offset %#x is past the end of the volume", fv.DataOffset)
	}

	fv.FVType = FVGUIDs[fv.FileSystemGUID]
	fv.buf = data[:fv.Length]
	return &fv, nil
}

// Buf returns the bytes backing the volume.
func (fv *FirmwareVolume) Buf() []byte {
	return fv.buf
}

// ErasePolarity returns the byte value free space is filled with.
func (fv *FirmwareVolume) ErasePolarity() uint8 {
	if fv.Attributes&FVErasePolarityAttr != 0 {
		return 0xFF
	}
	return 0
}

// FileAt parses the file starting at offset, relative to the start of
// the volume. It returns nil without an error when offset points at
// free space.
func (fv *FirmwareVolume) FileAt(offset uint64) (*File, error) {
	if offset%8 != 0 {
		return nil, fmt.Errorf("file offset %#x is not 8 byte aligned", offset)
	}
	if offset > fv.Length || fv.Length-offset < FileHeaderMinLength {
		return nil, fmt.Errorf("file header at %#x overruns the volume end %#x", offset, fv.Length)
	}
	return parseFile(fv.buf[:fv.Length], offset, fv.ErasePolarity())
}

// NextFileOffset returns the offset of the slot following f. Files are
// packed on 8 byte boundaries.
func (fv *FirmwareVolume) NextFileOffset(f *File) uint64 {
	return Align8(f.Offset + f.Header.ExtendedSize)
}

// Files walks the volume and returns every file up to the free space at
// the end. Walking requires a supported filesystem GUID.
func (fv *FirmwareVolume) Files() ([]*File, error) {
	if !SupportedFS(fv.FileSystemGUID) {
		return nil, fmt.Errorf("cannot walk files of a %s volume, filesystem is %v",
			fv.FVType, fv.FileSystemGUID)
	}
	var files []*File
	for offset := fv.DataOffset; ; {
		if fv.Length-offset < FileHeaderMinLength {
			// Less than a header of slack at the end of the volume.
			fv.FreeSpace = fv.Length - offset
			break
		}
		file, err := fv.FileAt(offset)
		if err != nil {
			return nil, fmt.Errorf("file at offset %#x: %v", offset, err)
		}
		if file == nil {
			fv.FreeSpace = fv.Length - offset
			break
		}
		files = append(files, file)
		next := fv.NextFileOffset(file)
		if next <= offset {
			return nil, fmt.Errorf("file at offset %#x has size %#x and makes no progress",
				offset, file.Header.ExtendedSize)
		}
		if next > fv.Length {
			return nil, fmt.Errorf("file at offset %#x runs past the end of the volume", offset)
		}
		offset = next
	}
	return files, nil
}

// FindFirmwareVolumeOffset searches data for a firmware volume signature
// and returns the offset of the volume start, or -1 if there is none.
// Volumes are 8 byte aligned, so the search walks in 8 byte steps.
func FindFirmwareVolumeOffset(data []byte) int64 {
	// The signature sits 40 bytes into the header, after the zero
	// vector and the filesystem GUID.
	const sigOffset = 40
	if len(data) < sigOffset+4 {
		return -1
	}
	var sig [4]byte
	binary.LittleEndian.PutUint32(sig[:], FVSignature)
	for offset := int64(sigOffset); offset <= int64(len(data)-4); offset += 8 {
		if bytes.Equal(data[offset:offset+4], sig[:]) {
			return offset - sigOffset
		}
	}
	return -1
}

// ScanFirmwareVolumes parses every firmware volume found in data.
// base is the offset of data within the enclosing image and is used for
// the FVOffset of the results. Regions that carry a signature but fail
// to parse are logged and skipped.
func ScanFirmwareVolumes(data []byte, base uint64) []*FirmwareVolume {
	var fvs []*FirmwareVolume
	for offset := uint64(0); offset < uint64(len(data)); {
		loc := FindFirmwareVolumeOffset(data[offset:])
		if loc < 0 {
			break
		}
		start := offset + uint64(loc)
		fv, err := ParseFirmwareVolume(data[start:], base+start)
		if err != nil {
			log.Warnf("skipping volume candidate at %#x: %v", base+start, err)
			offset = start + 8
			continue
		}
		fvs = append(fvs, fv)
		offset = start + fv.Length
	}
	return fvs
}
