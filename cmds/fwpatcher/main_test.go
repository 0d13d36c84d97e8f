package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
	"github.com/tinytoy-sec/FwPatcher/pkg/layout"
	"github.com/tinytoy-sec/FwPatcher/pkg/patch"
)

func TestExitStatus(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want int
	}{
		{"not a volume", &patch.NotVolumeError{Offset: 0, Err: errors.New("junk")}, 2},
		{"module not found", &patch.ModuleNotFoundError{GUID: guid.GUID{}}, 3},
		{"layout entry not found", fmt.Errorf("resolving target: %w", layout.ErrNotFound), 3},
		{"payload too large", &patch.PayloadTooLargeError{PayloadSize: 2, Capacity: 1}, 4},
		{"corrupt patch result", &patch.CorruptPatchError{Violations: errors.New("bad")}, 5},
		{"io failure", &patch.IOError{Op: "read", Path: "x", Err: errors.New("enoent")}, 6},
		{"wrapped io failure", fmt.Errorf("loading image: %w", &patch.IOError{Op: "read", Path: "x"}), 6},
		{"anything else", errors.New("flag parse error"), 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitStatus(tc.err))
		})
	}
}

func TestOffsetValue(t *testing.T) {
	var v offsetValue
	assert.Equal(t, "offset", v.Type())

	assert.NoError(t, v.Set("0x820048"))
	assert.True(t, v.set)
	assert.Equal(t, uint64(0x820048), v.val)
	assert.Equal(t, "0x820048", v.String())

	assert.NoError(t, v.Set("4096"))
	assert.Equal(t, uint64(4096), v.val)

	assert.Error(t, v.Set("not-a-number"))
}
