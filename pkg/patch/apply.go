package patch

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/tinytoy-sec/FwPatcher/pkg/log"
	"github.com/tinytoy-sec/FwPatcher/pkg/uefi"
)

// Apply executes the plan against the volume it was computed for. All
// edits land on a scratch copy first; the volume buffer is only
// touched after the scratch copy passes validation, so a failed apply
// leaves the image as it was.
func Apply(plan *EditPlan) error {
	fv := plan.Span.FV
	vbuf := fv.Buf()
	scratch := make([]byte, len(vbuf))
	copy(scratch, vbuf)
	polarity := fv.ErasePolarity()

	if err := applyToScratch(plan, scratch, polarity); err != nil {
		return err
	}
	if err := validateScratch(plan, scratch, vbuf); err != nil {
		return &CorruptPatchError{Violations: err}
	}

	copy(vbuf, scratch)
	log.Debugf("committed %#x byte file at %#x, window %v", plan.NewFileSize,
		plan.Span.FileSpan.Start, plan.Span.Combined)
	return nil
}

func applyToScratch(plan *EditPlan, scratch []byte, polarity uint8) error {
	// The file body: payload, wrapped in a section unless the file is
	// raw, plus the zeros absorbed instead of an undersized pad.
	data := plan.Payload
	if plan.InflateBy > 0 {
		data = make([]byte, 0, uint64(len(plan.Payload))+plan.InflateBy)
		data = append(data, plan.Payload...)
		data = append(data, make([]byte, plan.InflateBy)...)
	}
	var body []byte
	if plan.HasSection {
		body = uefi.AssembleSection(plan.SectionType, data)
	} else {
		body = data
	}

	file := uefi.File{Header: plan.FileHeader}
	if err := file.ChecksumAndAssemble(body); err != nil {
		return &CorruptPatchError{Violations: err}
	}

	fileStart := plan.Span.FileSpan.Start
	copy(scratch[fileStart:], file.Buf())

	// Alignment slack up to the pad, or to the window end, reverts to
	// the erased state.
	slackEnd := plan.Span.Combined.End
	if plan.HasPad {
		slackEnd = plan.PadOffset
	}
	for i := fileStart + plan.NewFileSize; i < slackEnd; i++ {
		scratch[i] = polarity
	}

	if plan.HasPad && !plan.PadUntouched {
		pad, err := buildPad(plan, polarity)
		if err != nil {
			return &CorruptPatchError{Violations: err}
		}
		copy(scratch[plan.PadOffset:], pad.Buf())
	}
	return nil
}

// buildPad makes the trailing pad file. A pad that moved or resized
// keeps the identity fields of the old one; a brand new pad gets the
// stock erased-state identity.
func buildPad(plan *EditPlan, polarity uint8) (*uefi.File, error) {
	old := plan.Span.Pad
	if old == nil {
		return uefi.CreatePadFile(plan.PadSize, polarity)
	}
	pad := uefi.File{Header: old.Header}
	pad.Header.SetSize(plan.PadSize)
	body := bytes.Repeat([]byte{polarity}, int(plan.PadSize-pad.Header.HeaderLen()))
	if err := pad.ChecksumAndAssemble(body); err != nil {
		return nil, err
	}
	return &pad, nil
}

// validateScratch re-reads the patched scratch buffer from scratch and
// collects every violated expectation.
func validateScratch(plan *EditPlan, scratch, original []byte) error {
	var violations *multierror.Error
	span := plan.Span

	if len(scratch) != len(original) {
		violations = multierror.Append(violations,
			fmt.Errorf("image length changed from %#x to %#x", len(original), len(scratch)))
		return violations.ErrorOrNil()
	}

	fv, err := uefi.ParseFirmwareVolume(scratch, span.FV.FVOffset)
	if err != nil {
		violations = multierror.Append(violations,
			fmt.Errorf("patched volume no longer parses: %v", err))
		return violations.ErrorOrNil()
	}

	file, err := fv.FileAt(span.FileSpan.Start)
	switch {
	case err != nil:
		violations = multierror.Append(violations,
			fmt.Errorf("patched file no longer parses: %v", err))
	case file == nil:
		violations = multierror.Append(violations,
			fmt.Errorf("patched file slot at %#x reads as free space", span.FileSpan.Start))
	default:
		violations = validateFile(plan, file, violations)
	}

	if plan.HasPad {
		violations = validatePad(plan, fv, violations)
	}

	fileStart := span.FileSpan.Start
	if !bytes.Equal(scratch[:fileStart], original[:fileStart]) {
		violations = multierror.Append(violations,
			fmt.Errorf("bytes before the file at %#x changed", fileStart))
	}
	if !bytes.Equal(scratch[span.Combined.End:], original[span.Combined.End:]) {
		violations = multierror.Append(violations,
			fmt.Errorf("bytes after the window end %#x changed", span.Combined.End))
	}

	return violations.ErrorOrNil()
}

func validateFile(plan *EditPlan, file *uefi.File, violations *multierror.Error) *multierror.Error {
	if file.Header.GUID != plan.FileHeader.GUID {
		violations = multierror.Append(violations,
			fmt.Errorf("patched file GUID reads back as %v, want %v", file.Header.GUID, plan.FileHeader.GUID))
	}
	if file.Header.ExtendedSize != plan.NewFileSize {
		violations = multierror.Append(violations,
			fmt.Errorf("patched file size reads back as %#x, want %#x", file.Header.ExtendedSize, plan.NewFileSize))
	}
	if file.Header.State != plan.FileHeader.State {
		violations = multierror.Append(violations,
			fmt.Errorf("patched file state reads back as %#02x, want %#02x", file.Header.State, plan.FileHeader.State))
	}
	if !file.HeaderChecksumValid() {
		violations = multierror.Append(violations,
			fmt.Errorf("patched file header checksum does not sum to zero"))
	}
	if !file.DataChecksumValid() {
		violations = multierror.Append(violations,
			fmt.Errorf("patched file data checksum does not match"))
	}

	payload := file.Data()
	if plan.HasSection {
		sections, err := file.Sections()
		switch {
		case err != nil:
			violations = multierror.Append(violations,
				fmt.Errorf("patched file sections no longer parse: %v", err))
			return violations
		case len(sections) != 1:
			violations = multierror.Append(violations,
				fmt.Errorf("patched file holds %d sections, want 1", len(sections)))
			return violations
		default:
			payload = sections[0].Data()
		}
	}
	if uint64(len(payload)) != uint64(len(plan.Payload))+plan.InflateBy {
		violations = multierror.Append(violations,
			fmt.Errorf("payload reads back as %#x bytes, want %#x plus %#x inflation",
				len(payload), len(plan.Payload), plan.InflateBy))
	} else if !bytes.Equal(payload[:len(plan.Payload)], plan.Payload) {
		violations = multierror.Append(violations,
			fmt.Errorf("payload bytes read back differently than written"))
	}
	return violations
}

func validatePad(plan *EditPlan, fv *uefi.FirmwareVolume, violations *multierror.Error) *multierror.Error {
	pad, err := fv.FileAt(plan.PadOffset)
	switch {
	case err != nil:
		violations = multierror.Append(violations,
			fmt.Errorf("pad file no longer parses: %v", err))
	case pad == nil:
		violations = multierror.Append(violations,
			fmt.Errorf("pad slot at %#x reads as free space", plan.PadOffset))
	default:
		if pad.Header.Type != uefi.FVFileTypePad {
			violations = multierror.Append(violations,
				fmt.Errorf("file at %#x reads back as %v, want %v", plan.PadOffset,
					pad.Header.Type, uefi.FVFileTypePad))
		}
		if pad.Header.ExtendedSize != plan.PadSize {
			violations = multierror.Append(violations,
				fmt.Errorf("pad size reads back as %#x, want %#x", pad.Header.ExtendedSize, plan.PadSize))
		}
		if !pad.HeaderChecksumValid() {
			violations = multierror.Append(violations,
				fmt.Errorf("pad header checksum does not sum to zero"))
		}
	}
	return violations
}
