package uefi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
)

const (
	// FileHeaderMinLength is the length of the standard file header.
	FileHeaderMinLength = 0x18
	// FileHeaderExtMinLength is the length of the header carrying the
	// 64-bit extended size.
	FileHeaderExtMinLength = 0x20
	// EmptyBodyChecksum is the file checksum value used when the file
	// attributes do not request a data checksum.
	EmptyBodyChecksum = 0xAA
)

// FVFileType is the type field of an FFS file header.
type FVFileType uint8

// FFS file types.
const (
	FVFileTypeAll FVFileType = iota
	FVFileTypeRaw
	FVFileTypeFreeForm
	FVFileTypeSECCore
	FVFileTypePEICore
	FVFileTypeDXECore
	FVFileTypePEIM
	FVFileTypeDriver
	FVFileTypeCombinedPEIMDriver
	FVFileTypeApplication
	FVFileTypeMM
	FVFileTypeVolumeImage
	FVFileTypeCombinedMMDXE
	FVFileTypeMMCore
	FVFileTypeMMStandalone
	FVFileTypeMMCoreStandalone
	FVFileTypeOEMMin   FVFileType = 0xC0
	FVFileTypeOEMMax   FVFileType = 0xDF
	FVFileTypeDebugMin FVFileType = 0xE0
	FVFileTypeDebugMax FVFileType = 0xEF
	FVFileTypePad      FVFileType = 0xF0
	FVFileTypeFFSMax   FVFileType = 0xFF
)

var fileTypeNames = map[FVFileType]string{
	FVFileTypeRaw:                "RAW",
	FVFileTypeFreeForm:           "FREEFORM",
	FVFileTypeSECCore:            "SEC_CORE",
	FVFileTypePEICore:            "PEI_CORE",
	FVFileTypeDXECore:            "DXE_CORE",
	FVFileTypePEIM:               "PEIM",
	FVFileTypeDriver:             "DRIVER",
	FVFileTypeCombinedPEIMDriver: "COMBINED_PEIM_DRIVER",
	FVFileTypeApplication:        "APPLICATION",
	FVFileTypeMM:                 "MM",
	FVFileTypeVolumeImage:        "FV_IMAGE",
	FVFileTypeCombinedMMDXE:      "COMBINED_MM_DXE",
	FVFileTypeMMCore:             "MM_CORE",
	FVFileTypeMMStandalone:       "MM_STANDALONE",
	FVFileTypeMMCoreStandalone:   "MM_CORE_STANDALONE",
	FVFileTypePad:                "PAD",
}

func (t FVFileType) String() string {
	if name, ok := fileTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%#02x)", uint8(t))
}

// FileAttr is the attributes field of an FFS file header.
type FileAttr uint8

// FFS file attribute bits.
const (
	FileAttrLargeFile      FileAttr = 0x01
	FileAttrDataAlignment2 FileAttr = 0x02
	FileAttrFixed          FileAttr = 0x04
	FileAttrDataAlignment  FileAttr = 0x38
	FileAttrChecksum       FileAttr = 0x40
)

var alignments = [8]uint64{1, 16, 128, 512, 1024, 4096, 32 * 1024, 64 * 1024}
var alignmentsBig = [8]uint64{128 * 1024, 256 * 1024, 512 * 1024, 1024 * 1024,
	2 * 1024 * 1024, 4 * 1024 * 1024, 8 * 1024 * 1024, 16 * 1024 * 1024}

// IsLarge reports whether the file uses the extended size header.
func (a FileAttr) IsLarge() bool {
	return a&FileAttrLargeFile != 0
}

// HasChecksum reports whether the file data carries a real checksum.
func (a FileAttr) HasChecksum() bool {
	return a&FileAttrChecksum != 0
}

// SetLarge switches the file to the extended size header.
func (a *FileAttr) SetLarge() {
	*a |= FileAttrLargeFile
}

// GetAlignment returns the required alignment of the file data.
func (a FileAttr) GetAlignment() uint64 {
	index := (a & FileAttrDataAlignment) >> 3
	if a&FileAttrDataAlignment2 != 0 {
		return alignmentsBig[index]
	}
	return alignments[index]
}

// FFS file state bits, before the erase polarity adjustment.
const (
	FileStateHeaderConstruction = 0x01
	FileStateHeaderValid        = 0x02
	FileStateDataValid          = 0x04
	FileStateMarkedForUpdate    = 0x08
	FileStateDeleted            = 0x10
	FileStateHeaderInvalid      = 0x20

	// FileStateValid is the state of a fully written live file.
	FileStateValid = FileStateHeaderConstruction | FileStateHeaderValid | FileStateDataValid
)

// IntegrityCheck holds the header and file checksums.
type IntegrityCheck struct {
	Header uint8
	File   uint8
}

// FileHeader mirrors EFI_FFS_FILE_HEADER.
type FileHeader struct {
	GUID       guid.GUID
	Checksum   IntegrityCheck
	Type       FVFileType
	Attributes FileAttr
	Size       [3]uint8
	State      uint8
}

// FileHeaderExtended mirrors EFI_FFS_FILE_HEADER2. The extended size is
// only present on flash when the large file attribute is set; for small
// files it is filled in from the 3 byte size during parsing.
type FileHeaderExtended struct {
	FileHeader
	ExtendedSize uint64
}

// HeaderLen returns the on-flash length of the file header.
func (fh *FileHeaderExtended) HeaderLen() uint64 {
	if fh.Attributes.IsLarge() {
		return FileHeaderExtMinLength
	}
	return FileHeaderMinLength
}

// SetSize updates the size fields to describe a file of size total
// bytes, header included. A header already using the extended size
// encoding keeps it.
func (fh *FileHeaderExtended) SetSize(size uint64) {
	fh.ExtendedSize = size
	fh.Size = Write3Size(size)
	if size >= 0xFFFFFF {
		fh.Attributes.SetLarge()
	}
	if fh.Attributes.IsLarge() {
		fh.Size = [3]uint8{0xFF, 0xFF, 0xFF}
	}
}

// SetState stores the state bits adjusted for the volume erase polarity.
func (fh *FileHeader) SetState(state uint8, polarity uint8) {
	fh.State = state ^ polarity
}

// File is a single FFS file. When returned by FileAt it is a view into
// the volume buffer; when built by ChecksumAndAssemble it owns its
// buffer until the caller copies it into place.
type File struct {
	Header FileHeaderExtended

	// Offset of the file relative to the start of the volume.
	Offset uint64
	// DataOffset is the length of the header, and so the offset of the
	// file data.
	DataOffset uint64

	buf []byte
}

// parseFile reads the file starting at offset within volBuf. A header
// slot still in the erased state parses as nil.
func parseFile(volBuf []byte, offset uint64, polarity uint8) (*File, error) {
	f := File{Offset: offset}

	if isErased(volBuf[offset:offset+FileHeaderMinLength], polarity) {
		return nil, nil
	}
	reader := bytes.NewReader(volBuf[offset:])
	if err := binary.Read(reader, binary.LittleEndian, &f.Header.FileHeader); err != nil {
		return nil, err
	}

	f.Header.ExtendedSize = Read3Size(f.Header.Size)
	f.DataOffset = FileHeaderMinLength
	if f.Header.Attributes.IsLarge() || f.Header.ExtendedSize == 0xFFFFFF {
		if uint64(len(volBuf))-offset < FileHeaderExtMinLength {
			return nil, fmt.Errorf("extended file header overruns the volume")
		}
		if err := binary.Read(reader, binary.LittleEndian, &f.Header.ExtendedSize); err != nil {
			return nil, err
		}
		f.DataOffset = FileHeaderExtMinLength
	}
	if f.Header.ExtendedSize < f.DataOffset {
		return nil, fmt.Errorf("file size %#x is smaller than the header length %#x",
			f.Header.ExtendedSize, f.DataOffset)
	}
	if f.Header.ExtendedSize > uint64(len(volBuf))-offset {
		return nil, fmt.Errorf("file size %#x overruns the volume, %#x bytes remain",
			f.Header.ExtendedSize, uint64(len(volBuf))-offset)
	}

	f.buf = volBuf[offset : offset+f.Header.ExtendedSize]
	return &f, nil
}

// Buf returns the file bytes, header included.
func (f *File) Buf() []byte {
	return f.buf
}

// Data returns the file bytes after the header.
func (f *File) Data() []byte {
	return f.buf[f.DataOffset:]
}

// UnmaskedState undoes the polarity adjustment of the state byte.
func (f *File) UnmaskedState(polarity uint8) uint8 {
	return f.Header.State ^ polarity
}

// ChecksumHeader computes the 8-bit sum of the file header, leaving out
// the state and the file checksum fields. A valid header sums to zero.
func (f *File) ChecksumHeader() uint8 {
	sum := Checksum8(f.buf[:f.DataOffset])
	sum -= f.Header.Checksum.File
	sum -= f.Header.State
	return sum
}

// HeaderChecksumValid reports whether the header checksum is good.
func (f *File) HeaderChecksumValid() bool {
	return f.ChecksumHeader() == 0
}

// DataChecksumValid reports whether the file checksum matches the data,
// or holds the fixed placeholder when no data checksum was requested.
func (f *File) DataChecksumValid() bool {
	if !f.Header.Attributes.HasChecksum() {
		return f.Header.Checksum.File == EmptyBodyChecksum
	}
	return Checksum8(f.Data())+f.Header.Checksum.File == 0
}

// ChecksumAndAssemble builds the file bytes from the header fields and
// fileData, computing both integrity checksums. The size fields must
// already describe the assembled length and the state byte must be set.
func (f *File) ChecksumAndAssemble(fileData []byte) error {
	fh := &f.Header
	headerLen := fh.HeaderLen()
	if want := headerLen + uint64(len(fileData)); fh.ExtendedSize != want {
		return fmt.Errorf("header says the file is %#x bytes, assembling %#x", fh.ExtendedSize, want)
	}

	if fh.Attributes.HasChecksum() {
		fh.Checksum.File = 0 - Checksum8(fileData)
	} else {
		fh.Checksum.File = EmptyBodyChecksum
	}

	fh.Checksum.Header = 0
	header := new(bytes.Buffer)
	if err := binary.Write(header, binary.LittleEndian, fh.FileHeader); err != nil {
		return fmt.Errorf("unable to assemble file header: %v", err)
	}
	if fh.Attributes.IsLarge() {
		if err := binary.Write(header, binary.LittleEndian, fh.ExtendedSize); err != nil {
			return fmt.Errorf("unable to assemble file header: %v", err)
		}
	}
	// The header checksum covers the header with the state and the file
	// checksum fields taken as zero.
	hdr := header.Bytes()
	sum := Checksum8(hdr) - fh.Checksum.File - fh.State
	fh.Checksum.Header = 0 - sum
	hdr[16] = fh.Checksum.Header

	f.DataOffset = headerLen
	f.buf = make([]byte, 0, fh.ExtendedSize)
	f.buf = append(f.buf, hdr...)
	f.buf = append(f.buf, fileData...)
	return nil
}

// CreatePadFile builds a pad file of size total bytes for a volume with
// the given erase polarity. The body is left in the erased state.
func CreatePadFile(size uint64, polarity uint8) (*File, error) {
	if size < FileHeaderMinLength {
		return nil, fmt.Errorf("pad file size %#x is smaller than a file header", size)
	}
	f := File{Offset: 0}
	fh := &f.Header
	for i := range fh.GUID {
		fh.GUID[i] = polarity
	}
	fh.Type = FVFileTypePad
	fh.SetSize(size)
	fh.SetState(FileStateValid, polarity)

	body := bytes.Repeat([]byte{polarity}, int(size-fh.HeaderLen()))
	if err := f.ChecksumAndAssemble(body); err != nil {
		return nil, err
	}
	return &f, nil
}
