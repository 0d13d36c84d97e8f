// Package unicode converts between the UCS2 strings stored in firmware
// and Go's UTF8.
package unicode

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// UCS2ToUTF8 decodes a little endian, null terminated UCS2 string.
func UCS2ToUTF8(input []byte) string {
	decoder := utf16LE.NewDecoder()
	output, err := decoder.Bytes(input)
	if err != nil {
		// Fall back to the raw bytes for display.
		return string(input)
	}
	return strings.TrimRight(string(output), "\x00")
}

// UTF8ToUCS2 encodes a string to little endian UCS2 with a null
// terminator.
func UTF8ToUCS2(input string) []byte {
	input += "\000"
	encoder := utf16LE.NewEncoder()
	output, err := encoder.Bytes([]byte(input))
	if err != nil {
		return nil
	}
	return output
}
