package uefi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
	"github.com/tinytoy-sec/FwPatcher/pkg/unicode"
)

const (
	// SectionMinLength is the length of the common section header.
	SectionMinLength = 0x04
	// SectionExtMinLength is the length of the header carrying the
	// 32-bit extended size.
	SectionExtMinLength = 0x08
)

// SectionType is the type field of a section header.
type SectionType uint8

// Section types.
const (
	SectionTypeAll                 SectionType = 0x00
	SectionTypeCompression         SectionType = 0x01
	SectionTypeGUIDDefined         SectionType = 0x02
	SectionTypeDisposable          SectionType = 0x03
	SectionTypePE32                SectionType = 0x10
	SectionTypePIC                 SectionType = 0x11
	SectionTypeTE                  SectionType = 0x12
	SectionTypeDXEDepEx            SectionType = 0x13
	SectionTypeVersion             SectionType = 0x14
	SectionTypeUserInterface       SectionType = 0x15
	SectionTypeCompatibility16     SectionType = 0x16
	SectionTypeFirmwareVolumeImage SectionType = 0x17
	SectionTypeFreeformSubtypeGUID SectionType = 0x18
	SectionTypeRaw                 SectionType = 0x19
	SectionTypePEIDepEx            SectionType = 0x1B
	SectionTypeMMDepEx             SectionType = 0x1C
)

var sectionTypeNames = map[SectionType]string{
	SectionTypeCompression:         "EFI_SECTION_COMPRESSION",
	SectionTypeGUIDDefined:         "EFI_SECTION_GUID_DEFINED",
	SectionTypeDisposable:          "EFI_SECTION_DISPOSABLE",
	SectionTypePE32:                "EFI_SECTION_PE32",
	SectionTypePIC:                 "EFI_SECTION_PIC",
	SectionTypeTE:                  "EFI_SECTION_TE",
	SectionTypeDXEDepEx:            "EFI_SECTION_DXE_DEPEX",
	SectionTypeVersion:             "EFI_SECTION_VERSION",
	SectionTypeUserInterface:       "EFI_SECTION_USER_INTERFACE",
	SectionTypeCompatibility16:     "EFI_SECTION_COMPATIBILITY16",
	SectionTypeFirmwareVolumeImage: "EFI_SECTION_FIRMWARE_VOLUME_IMAGE",
	SectionTypeFreeformSubtypeGUID: "EFI_SECTION_FREEFORM_SUBTYPE_GUID",
	SectionTypeRaw:                 "EFI_SECTION_RAW",
	SectionTypePEIDepEx:            "EFI_SECTION_PEI_DEPEX",
	SectionTypeMMDepEx:             "EFI_SECTION_MM_DEPEX",
}

func (t SectionType) String() string {
	if name, ok := sectionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%#02x)", uint8(t))
}

// IsExecutable reports whether the section holds the module's image.
func (t SectionType) IsExecutable() bool {
	return t == SectionTypePE32 || t == SectionTypePIC || t == SectionTypeTE
}

// SectionHeader mirrors EFI_COMMON_SECTION_HEADER.
type SectionHeader struct {
	Size [3]uint8
	Type SectionType
}

// SectionGUIDDefinedHeader mirrors the fields a GUID defined section
// adds after the common header.
type SectionGUIDDefinedHeader struct {
	GUID       guid.GUID
	DataOffset uint16
	Attributes uint16
}

// Section is a single section of an FFS file. It is a view into the
// file bytes.
type Section struct {
	Header SectionHeader

	// Offset of the section relative to the start of the file.
	Offset uint64
	// Size of the whole section, header included.
	Size uint64
	// DataOffset is the offset of the section data from the section
	// start.
	DataOffset uint64
	// Name is the decoded string of a user interface section.
	Name string
	// GUIDDefined holds the extra header of a GUID defined section.
	GUIDDefined *SectionGUIDDefinedHeader

	buf []byte
}

// parseSection reads the section starting at offset within fileBuf.
func parseSection(fileBuf []byte, offset uint64) (*Section, error) {
	s := Section{Offset: offset}

	remaining := uint64(len(fileBuf)) - offset
	if remaining < SectionMinLength {
		return nil, fmt.Errorf("%#x bytes is too short for a section header", remaining)
	}
	reader := bytes.NewReader(fileBuf[offset:])
	if err := binary.Read(reader, binary.LittleEndian, &s.Header); err != nil {
		return nil, err
	}

	s.Size = Read3Size(s.Header.Size)
	s.DataOffset = SectionMinLength
	if s.Size == 0xFFFFFF {
		if remaining < SectionExtMinLength {
			return nil, fmt.Errorf("extended section header overruns the file")
		}
		var extSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &extSize); err != nil {
			return nil, err
		}
		s.Size = uint64(extSize)
		s.DataOffset = SectionExtMinLength
	}
	if s.Size < s.DataOffset {
		return nil, fmt.Errorf("section size %#x is smaller than the header length %#x",
			s.Size, s.DataOffset)
	}
	if s.Size > remaining {
		return nil, fmt.Errorf("section size %#x overruns the file, %#x bytes remain",
			s.Size, remaining)
	}
	s.buf = fileBuf[offset : offset+s.Size]

	switch s.Header.Type {
	case SectionTypeGUIDDefined:
		var gd SectionGUIDDefinedHeader
		if err := binary.Read(reader, binary.LittleEndian, &gd); err != nil {
			return nil, fmt.Errorf("GUID defined section header: %v", err)
		}
		if uint64(gd.DataOffset) > s.Size {
			return nil, fmt.Errorf("GUID defined data offset %#x overruns the section", gd.DataOffset)
		}
		s.GUIDDefined = &gd
		s.DataOffset = uint64(gd.DataOffset)
	case SectionTypeUserInterface:
		s.Name = unicode.UCS2ToUTF8(s.buf[s.DataOffset:])
	}
	return &s, nil
}

// Buf returns the section bytes, header included.
func (s *Section) Buf() []byte {
	return s.buf
}

// Data returns the section bytes after the header.
func (s *Section) Data() []byte {
	return s.buf[s.DataOffset:]
}

// Sections walks the sections of the file. Sections are packed on
// 4 byte boundaries; trailing slack smaller than a header is ignored.
func (f *File) Sections() ([]*Section, error) {
	if f.Header.Type == FVFileTypeRaw || f.Header.Type == FVFileTypePad {
		return nil, nil
	}
	var sections []*Section
	for offset := f.DataOffset; offset < f.Header.ExtendedSize; {
		if f.Header.ExtendedSize-offset < SectionMinLength {
			break
		}
		s, err := parseSection(f.buf, offset)
		if err != nil {
			return nil, fmt.Errorf("section at offset %#x of file %v: %v", offset, f.Header.GUID, err)
		}
		sections = append(sections, s)
		next := Align4(offset + s.Size)
		if next <= offset {
			return nil, fmt.Errorf("section at offset %#x makes no progress", offset)
		}
		offset = next
	}
	return sections, nil
}

// SectionTotalLength returns the assembled length of a section holding
// dataLen bytes of data, accounting for the extended header encoding.
func SectionTotalLength(dataLen uint64) uint64 {
	if dataLen+SectionMinLength < 0xFFFFFF {
		return dataLen + SectionMinLength
	}
	return dataLen + SectionExtMinLength
}

// AssembleSection builds the bytes of a leaf section of the given type
// around data, choosing the size encoding to fit.
func AssembleSection(typ SectionType, data []byte) []byte {
	size := uint64(len(data)) + SectionMinLength
	if size < 0xFFFFFF {
		threeSize := Write3Size(size)
		buf := make([]byte, 0, size)
		buf = append(buf, threeSize[0], threeSize[1], threeSize[2], byte(typ))
		return append(buf, data...)
	}
	size = uint64(len(data)) + SectionExtMinLength
	buf := make([]byte, SectionExtMinLength, size)
	buf[0], buf[1], buf[2] = 0xFF, 0xFF, 0xFF
	buf[3] = byte(typ)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(size))
	return append(buf, data...)
}
