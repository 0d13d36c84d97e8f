package patch

import (
	"fmt"

	"github.com/tinytoy-sec/FwPatcher/pkg/log"
	"github.com/tinytoy-sec/FwPatcher/pkg/uefi"
)

// EditPlan is the full description of a patch before any byte moves:
// the new file header, the payload placement and what happens to the
// space the old module occupied.
type EditPlan struct {
	// Span is the geometry the plan was computed against.
	Span *ModuleSpan

	// FileHeader is the header of the rewritten file. Its size fields
	// are final, its checksums are computed during apply.
	FileHeader uefi.FileHeaderExtended
	// HasSection tells whether the payload gets a section wrapper.
	HasSection bool
	// SectionType of the wrapper, carried over from the old module.
	SectionType uefi.SectionType
	// Payload bytes to place.
	Payload []byte
	// InflateBy is the count of zero bytes appended after the payload
	// when the leftover space is too small to hold a pad file.
	InflateBy uint64
	// NewFileSize is the size of the rewritten file, header included.
	NewFileSize uint64

	// HasPad tells whether a pad file follows the rewritten file.
	HasPad bool
	// PadUntouched is set when that pad is the old pad, byte for byte.
	PadUntouched bool
	// PadOffset and PadSize place the pad, relative to the volume.
	PadOffset uint64
	PadSize   uint64
}

// Plan works out how to fit payload into the module described by span.
// The combined window of the file and its trailing pad never changes
// size: leftover space becomes a pad file, or is absorbed into the
// file as trailing zeros when it is smaller than a pad header.
func Plan(span *ModuleSpan, payload []byte) (*EditPlan, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("refusing to plan an empty payload for file %v", span.File.Header.GUID)
	}

	plan := EditPlan{
		Span:       span,
		FileHeader: span.File.Header,
		Payload:    payload,
	}
	if span.Section != nil {
		plan.HasSection = true
		plan.SectionType = span.Section.Header.Type
	}

	fileStart := span.FileSpan.Start
	combinedEnd := span.Combined.End
	newSize := plan.sizeFor(0)

	newEnd := fileStart + newSize
	padStart := uefi.Align8(newEnd)
	if padStart > combinedEnd {
		return nil, plan.tooLarge(span)
	}

	switch gap := combinedEnd - padStart; {
	case gap == 0:
		// The new file fills the window up to alignment slack.
	case gap < uefi.FileHeaderMinLength:
		// No room for a pad header. Grow the file over the whole
		// window instead, the section absorbs the zeros.
		plan.InflateBy = combinedEnd - newEnd
		newSize = plan.sizeFor(plan.InflateBy)
		if fileStart+newSize != combinedEnd {
			// Inflating pushed a size field over an encoding limit.
			return nil, plan.tooLarge(span)
		}
	default:
		plan.HasPad = true
		plan.PadOffset = padStart
		plan.PadSize = gap
	}
	plan.NewFileSize = newSize

	if plan.HasPad && span.Pad != nil &&
		plan.PadOffset == span.Pad.Offset && plan.PadSize == span.Pad.Header.ExtendedSize {
		plan.PadUntouched = true
	}

	log.Debugf("plan for %v: file %v, new size %#x, inflate %#x, pad %v size %#x, untouched %v",
		span.File.Header.GUID, span.FileSpan, plan.NewFileSize, plan.InflateBy,
		plan.HasPad, plan.PadSize, plan.PadUntouched)
	return &plan, nil
}

// sizeFor computes the total file size for the payload plus extra
// trailing zeros, settling the header encodings as a side effect.
func (plan *EditPlan) sizeFor(extra uint64) uint64 {
	dataLen := uint64(len(plan.Payload)) + extra
	secLen := func() uint64 {
		if plan.HasSection {
			return uefi.SectionTotalLength(dataLen)
		}
		return dataLen
	}
	// Setting the size can flip the header to the extended encoding,
	// which grows the header itself, so settle in two rounds.
	plan.FileHeader.SetSize(plan.FileHeader.HeaderLen() + secLen())
	plan.FileHeader.SetSize(plan.FileHeader.HeaderLen() + secLen())
	return plan.FileHeader.ExtendedSize
}

// tooLarge builds the oversize error with the capacity the window
// actually offers.
func (plan *EditPlan) tooLarge(span *ModuleSpan) error {
	overhead := plan.FileHeader.HeaderLen()
	if plan.HasSection {
		overhead += uefi.SectionTotalLength(0)
	}
	capacity := uint64(0)
	if span.Combined.Len() > overhead {
		capacity = span.Combined.Len() - overhead
	}
	reclaimable := uint64(0)
	if span.Pad != nil {
		fileSlotEnd := uefi.Align8(span.FileSpan.End)
		if span.Combined.End > fileSlotEnd {
			reclaimable = span.Combined.End - fileSlotEnd
		}
	}
	return &PayloadTooLargeError{
		GUID:        span.File.Header.GUID,
		PayloadSize: uint64(len(plan.Payload)),
		Capacity:    capacity,
		Reclaimable: reclaimable,
	}
}
