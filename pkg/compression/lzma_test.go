package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLZMARoundTrip(t *testing.T) {
	codec := LZMA{}
	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"text", []byte("firmware volumes all the way down")},
		{"repetitive", bytes.Repeat([]byte{0xFF, 0x00, 0xA5}, 0x1000)},
		{"single byte", []byte{0x42}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := codec.Encode(tc.data)
			require.NoError(t, err)
			decoded, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.data, decoded)
		})
	}
}

func TestLZMADecodeGarbage(t *testing.T) {
	codec := LZMA{}
	_, err := codec.Decode([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestCompressorFromGUID(t *testing.T) {
	codec := CompressorFromGUID(LZMAGUID)
	require.NotNil(t, codec)
	assert.Equal(t, "LZMA", codec.Name())

	assert.Nil(t, CompressorFromGUID(ZLIBGUID))
}
