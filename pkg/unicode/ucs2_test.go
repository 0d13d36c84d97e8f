package unicode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"", "DxeCore", "Setup Utility"} {
		assert.Equal(t, s, UCS2ToUTF8(UTF8ToUCS2(s)))
	}
}

func TestUTF8ToUCS2(t *testing.T) {
	// Little endian code units with a null terminator.
	assert.Equal(t, []byte{'A', 0x00, 'B', 0x00, 0x00, 0x00}, UTF8ToUCS2("AB"))
}

func TestUCS2ToUTF8TrimsTerminator(t *testing.T) {
	assert.Equal(t, "Hi", UCS2ToUTF8([]byte{'H', 0x00, 'i', 0x00, 0x00, 0x00}))
}
