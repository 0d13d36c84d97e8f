package guid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseString(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		want string
	}{
		{"uppercase", "8C8CE578-8A3D-4F1C-9935-896185C32DD3", "8C8CE578-8A3D-4F1C-9935-896185C32DD3"},
		{"lowercase", "23c9322f-2af2-476a-bc4c-26bc88266c71", "23C9322F-2AF2-476A-BC4C-26BC88266C71"},
		{"no hyphens", "71DAD237900F4EA88DFD93F8F8C704DF", "71DAD237-900F-4EA8-8DFD-93F8F8C704DF"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, g.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"too short", "8C8CE578-8A3D-4F1C"},
		{"too long", "8C8CE578-8A3D-4F1C-9935-896185C32DD3FF"},
		{"not hex", "ZZZZZZZZ-8A3D-4F1C-9935-896185C32DD3"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.in)
			assert.Error(t, err)
		})
	}
}

func TestMixedEndianLayout(t *testing.T) {
	g, err := Parse("00112233-4455-6677-8899-AABBCCDDEEFF")
	require.NoError(t, err)
	// The first three fields are stored little endian, the rest as is.
	assert.Equal(t, GUID{0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66,
		0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, *g)
}

func TestJSONRoundTrip(t *testing.T) {
	g := MustParse("8C8CE578-8A3D-4F1C-9935-896185C32DD3")

	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"GUID" : "8C8CE578-8A3D-4F1C-9935-896185C32DD3"}`, string(out))

	var back GUID
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, *g, back)
}
