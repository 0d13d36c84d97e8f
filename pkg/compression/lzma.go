package compression

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// LZMA codes the raw LZMA stream format, the one used both by firmware
// sections and by .lzma files on disk.
type LZMA struct{}

// Name returns the name of the compressor.
func (c *LZMA) Name() string {
	return "LZMA"
}

// Decode decompresses an LZMA stream.
func (c *LZMA) Decode(encodedData []byte) ([]byte, error) {
	reader, err := lzma.NewReader(bytes.NewBuffer(encodedData))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

// Encode compresses to an LZMA stream with the uncompressed size in the
// header, the layout firmware tools expect.
func (c *LZMA) Encode(decodedData []byte) ([]byte, error) {
	wc := lzma.WriterConfig{
		SizeInHeader: true,
		Size:         int64(len(decodedData)),
		EOSMarker:    false,
	}
	if err := wc.Verify(); err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	writer, err := wc.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(decodedData); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
