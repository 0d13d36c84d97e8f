package uefi

import (
	"bytes"
	"fmt"

	"github.com/tinytoy-sec/FwPatcher/pkg/log"
)

// FlashSignature is the sequence marking an Intel flash descriptor.
var FlashSignature = []byte{0x5a, 0xa5, 0xf0, 0x0f}

// FlashDescriptorLength is the size of the descriptor region.
const FlashDescriptorLength = 0x1000

// FindSignature looks for the flash descriptor signature and returns
// the offset of the byte after it. The signature sits either at the
// very start of the image or after 16 bytes of reset vector.
func FindSignature(buf []byte) (int, error) {
	if len(buf) >= 20 && bytes.Equal(buf[16:20], FlashSignature) {
		return 20, nil
	}
	if len(buf) >= 4 && bytes.Equal(buf[:4], FlashSignature) {
		return 4, nil
	}
	firstBytesCnt := 20
	if len(buf) < firstBytesCnt {
		firstBytesCnt = len(buf)
	}
	return -1, fmt.Errorf("flash signature %#02x not found, first %d bytes are:\n%s",
		FlashSignature, firstBytesCnt, hexTable(buf[:firstBytesCnt]))
}

func hexTable(buf []byte) string {
	var b bytes.Buffer
	for _, val := range buf {
		fmt.Fprintf(&b, "%#02x ", val)
	}
	return b.String()
}

// IsFlashImage reports whether buf starts with a flash descriptor and
// so holds a full flash image rather than a bare firmware volume.
func IsFlashImage(buf []byte) bool {
	_, err := FindSignature(buf)
	return err == nil
}

// FlashDescriptor is the parsed descriptor region of a flash image.
type FlashDescriptor struct {
	DescriptorMapStart uint
	RegionStart        uint
	MasterStart        uint
	DescriptorMap      *FlashDescriptorMap
	Region             *FlashRegionSection
	Master             *FlashMasterSection

	buf []byte
}

// ParseFlashDescriptor parses the descriptor region at the start of a
// flash image.
func ParseFlashDescriptor(buf []byte) (*FlashDescriptor, error) {
	if len(buf) < FlashDescriptorLength {
		return nil, fmt.Errorf("%#x bytes is too short for a flash descriptor", len(buf))
	}
	fd := FlashDescriptor{buf: buf[:FlashDescriptorLength]}

	descriptor, err := FindSignature(fd.buf)
	if err != nil {
		return nil, err
	}
	fd.DescriptorMapStart = uint(descriptor)

	// Descriptor map
	desc, err := NewFlashDescriptorMap(fd.buf[fd.DescriptorMapStart:])
	if err != nil {
		return nil, err
	}
	fd.DescriptorMap = desc

	// Region
	fd.RegionStart = uint(fd.DescriptorMap.RegionBase) * 0x10
	if fd.RegionStart+FlashRegionSectionSize > FlashDescriptorLength {
		return nil, fmt.Errorf("region section at %#x overruns the descriptor", fd.RegionStart)
	}
	region, err := NewFlashRegionSection(fd.buf[fd.RegionStart : fd.RegionStart+FlashRegionSectionSize])
	if err != nil {
		return nil, err
	}
	fd.Region = region

	// Master
	fd.MasterStart = uint(fd.DescriptorMap.MasterBase) * 0x10
	if fd.MasterStart+FlashMasterSectionSize > FlashDescriptorLength {
		return nil, fmt.Errorf("master section at %#x overruns the descriptor", fd.MasterStart)
	}
	master, err := NewFlashMasterSection(fd.buf[fd.MasterStart : fd.MasterStart+FlashMasterSectionSize])
	if err != nil {
		return nil, err
	}
	fd.Master = master

	return &fd, nil
}

// FlashImage is a full flash image led by a descriptor.
type FlashImage struct {
	IFD *FlashDescriptor

	buf []byte
}

// ParseFlashImage parses the descriptor of a full flash image and
// returns a view of it.
func ParseFlashImage(buf []byte) (*FlashImage, error) {
	ifd, err := ParseFlashDescriptor(buf)
	if err != nil {
		return nil, err
	}
	return &FlashImage{IFD: ifd, buf: buf}, nil
}

// Buf returns the bytes backing the image.
func (f *FlashImage) Buf() []byte {
	return f.buf
}

// BIOSBounds returns the byte range of the BIOS region. An end past the
// actual image length is clamped, truncated dumps are common.
func (f *FlashImage) BIOSBounds() (uint64, uint64, error) {
	region := &f.IFD.Region.FlashRegions[RegionTypeBIOS]
	if !region.Valid() {
		return 0, 0, fmt.Errorf("BIOS region limits make no sense: base %#x limit %#x",
			region.Base, region.Limit)
	}
	start := uint64(region.BaseOffset())
	end := uint64(region.EndOffset())
	if start >= uint64(len(f.buf)) {
		return 0, 0, fmt.Errorf("BIOS region starts at %#x, past the image end %#x",
			start, len(f.buf))
	}
	if end > uint64(len(f.buf)) {
		log.Warnf("BIOS region ends at %#x, clamping to the image end %#x", end, len(f.buf))
		end = uint64(len(f.buf))
	}
	return start, end, nil
}

// BIOSVolumes parses every firmware volume inside the BIOS region.
func (f *FlashImage) BIOSVolumes() ([]*FirmwareVolume, error) {
	start, end, err := f.BIOSBounds()
	if err != nil {
		return nil, err
	}
	return ScanFirmwareVolumes(f.buf[start:end], start), nil
}
