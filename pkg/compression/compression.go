// Package compression implements the compressors found inside firmware
// images and in the files shipped next to them.
package compression

import (
	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
)

// Compression section GUIDs.
var (
	// LZMAGUID is the GUID defined section marker for plain LZMA.
	LZMAGUID = guid.MustParse("EE4E5898-3914-4259-9D6E-DC7BD79403CF")
	// LZMAX86GUID marks LZMA with the x86 branch filter applied first.
	LZMAX86GUID = guid.MustParse("D42AE6BD-1352-4BFB-909A-CA72A6EAE889")
	// ZLIBGUID marks zlib compressed sections found in some AMD images.
	ZLIBGUID = guid.MustParse("CE3233F5-2CD6-4D87-9152-4A238BB6D1C4")
)

// Compressor is the codec of one compressed section flavor.
type Compressor interface {
	// Name returns the compressor name for display.
	Name() string
	// Decode decompresses the encoded bytes.
	Decode(encodedData []byte) ([]byte, error)
	// Encode compresses the bytes for storage.
	Encode(decodedData []byte) ([]byte, error)
}

// CompressorFromGUID returns the codec for a GUID defined section, or
// nil when the GUID names no known compressor.
func CompressorFromGUID(guidDefined *guid.GUID) Compressor {
	switch *guidDefined {
	case *LZMAGUID:
		return &LZMA{}
	}
	return nil
}
