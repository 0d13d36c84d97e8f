// Package patch replaces the DXE core module of a firmware image in
// place. The edit keeps the image length, the file and volume
// checksums, and every byte outside the touched file and its trailing
// pad exactly as they were.
package patch

import (
	"errors"
	"fmt"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
)

// The failure classes of a patch run. Errors returned by this package
// unwrap to exactly one of them.
var (
	// ErrNotVolume flags an input that is not a recognizable firmware
	// volume or flash image, or one whose structure is inconsistent.
	ErrNotVolume = errors.New("not a firmware volume")
	// ErrModuleNotFound flags a target file GUID that no volume holds.
	ErrModuleNotFound = errors.New("module not found")
	// ErrPayloadTooLarge flags a payload that cannot fit the space of
	// the original module plus its reclaimable pad.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrCorruptPatchResult flags a patched buffer that failed its own
	// validation. The input image is left untouched.
	ErrCorruptPatchResult = errors.New("corrupt patch result")
	// ErrIO flags a filesystem failure.
	ErrIO = errors.New("i/o failure")
)

// NotVolumeError wraps the structural problem that disqualified an
// input buffer.
type NotVolumeError struct {
	Offset uint64
	Err    error
}

func (e *NotVolumeError) Error() string {
	return fmt.Sprintf("no usable firmware volume at offset %#x: %v", e.Offset, e.Err)
}

func (e *NotVolumeError) Unwrap() error {
	return ErrNotVolume
}

// ModuleNotFoundError reports the GUID that was searched for and how
// far the search went.
type ModuleNotFoundError struct {
	GUID          guid.GUID
	VolumesViewed int
	FilesViewed   int
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("no file %v in the image, searched %d file(s) across %d volume(s)",
		e.GUID, e.FilesViewed, e.VolumesViewed)
}

func (e *ModuleNotFoundError) Unwrap() error {
	return ErrModuleNotFound
}

// PayloadTooLargeError reports the payload size against the space the
// module and its trailing pad offer.
type PayloadTooLargeError struct {
	GUID        guid.GUID
	PayloadSize uint64
	Capacity    uint64
	Reclaimable uint64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload of %#x bytes does not fit file %v: payload capacity is %#x (%#x of it from the trailing pad)",
		e.PayloadSize, e.GUID, e.Capacity, e.Reclaimable)
}

func (e *PayloadTooLargeError) Unwrap() error {
	return ErrPayloadTooLarge
}

// CorruptPatchError carries the validation failures of a patched
// buffer.
type CorruptPatchError struct {
	Violations error
}

func (e *CorruptPatchError) Error() string {
	return fmt.Sprintf("patched buffer failed validation: %v", e.Violations)
}

func (e *CorruptPatchError) Unwrap() error {
	return ErrCorruptPatchResult
}

// IOError wraps a filesystem failure with the operation and path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return ErrIO
}
