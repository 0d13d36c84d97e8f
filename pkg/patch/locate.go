package patch

import (
	"fmt"

	"github.com/tinytoy-sec/FwPatcher/pkg/layout"
	"github.com/tinytoy-sec/FwPatcher/pkg/log"
	"github.com/tinytoy-sec/FwPatcher/pkg/uefi"
)

// Span is a half open byte range.
type Span struct {
	Start uint64
	End   uint64
}

// Len returns the length of the span.
func (s Span) Len() uint64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("[%#x, %#x)", s.Start, s.End)
}

// ModuleSpan is the geometry of a located module inside its volume.
// All offsets are relative to the volume start.
type ModuleSpan struct {
	// FV is the volume holding the module.
	FV *uefi.FirmwareVolume
	// File is the module's FFS file view.
	File *uefi.File
	// Section is the view of the payload bearing section. It is nil
	// for raw files, which carry their payload without section
	// structure.
	Section *uefi.Section
	// FileSpan covers the file, header included.
	FileSpan Span
	// PayloadSpan covers the payload bytes inside the section.
	PayloadSpan Span
	// Pad is the trailing pad file view, nil when the file is followed
	// by another live file, free space, or the volume end.
	Pad *uefi.File
	// Combined covers the file, its alignment slack and the trailing
	// pad. Rewrites stay inside this window, everything outside it is
	// untouched by a patch.
	Combined Span

	filesViewed int
}

// Locate finds the file hint.FileGUID inside fv and works out its
// geometry. hint.Offset, relative to the volume start, is tried first;
// when it does not point at the wanted file the volume is walked from
// the beginning.
func Locate(fv *uefi.FirmwareVolume, hint layout.Entry) (*ModuleSpan, error) {
	if !uefi.SupportedFS(fv.FileSystemGUID) {
		return nil, &NotVolumeError{
			Offset: fv.FVOffset,
			Err:    fmt.Errorf("filesystem %v (%s) cannot hold files", fv.FileSystemGUID, fv.FVType),
		}
	}

	span := ModuleSpan{FV: fv}
	file := span.tryHint(fv, hint)
	if file == nil {
		var err error
		file, err = span.walk(fv, hint)
		if err != nil {
			return nil, err
		}
	}
	span.File = file
	span.FileSpan = Span{file.Offset, file.Offset + file.Header.ExtendedSize}

	if err := span.findPayload(file); err != nil {
		return nil, &NotVolumeError{Offset: fv.FVOffset + file.Offset, Err: err}
	}
	if err := span.findPad(fv, file); err != nil {
		return nil, err
	}
	return &span, nil
}

// tryHint checks whether the hinted offset points straight at the
// wanted file. Any mismatch falls back to the full walk.
func (span *ModuleSpan) tryHint(fv *uefi.FirmwareVolume, hint layout.Entry) *uefi.File {
	offset := hint.Offset
	if offset < fv.DataOffset || offset >= fv.Length || offset%8 != 0 {
		return nil
	}
	file, err := fv.FileAt(offset)
	if err != nil {
		log.Warnf("layout says %s sits at %#x but no file parses there, scanning the volume: %v",
			hint.Name, offset, err)
		return nil
	}
	if file == nil || file.Header.GUID != hint.FileGUID {
		got := "free space"
		if file != nil {
			got = file.Header.GUID.String()
		}
		log.Warnf("layout says %s sits at %#x but that slot holds %s, scanning the volume",
			hint.Name, offset, got)
		return nil
	}
	span.filesViewed = 1
	log.Debugf("hint hit: file %v at %#x", file.Header.GUID, offset)
	return file
}

// walk scans the volume file by file for the wanted GUID.
func (span *ModuleSpan) walk(fv *uefi.FirmwareVolume, hint layout.Entry) (*uefi.File, error) {
	for offset := fv.DataOffset; ; {
		if offset > fv.Length || fv.Length-offset < uefi.FileHeaderMinLength {
			break
		}
		file, err := fv.FileAt(offset)
		if err != nil {
			return nil, &NotVolumeError{Offset: fv.FVOffset + offset, Err: err}
		}
		if file == nil {
			break
		}
		span.filesViewed++
		if file.Header.GUID == hint.FileGUID {
			return file, nil
		}
		next := fv.NextFileOffset(file)
		if next <= offset {
			return nil, &NotVolumeError{
				Offset: fv.FVOffset + offset,
				Err:    fmt.Errorf("file of size %#x makes no progress", file.Header.ExtendedSize),
			}
		}
		offset = next
	}
	return nil, &ModuleNotFoundError{
		GUID:          hint.FileGUID,
		VolumesViewed: 1,
		FilesViewed:   span.filesViewed,
	}
}

// findPayload picks the section whose data is the module payload. Raw
// files carry the payload directly after the file header.
func (span *ModuleSpan) findPayload(file *uefi.File) error {
	if file.Header.Type == uefi.FVFileTypeRaw {
		span.PayloadSpan = Span{
			file.Offset + file.DataOffset,
			file.Offset + file.Header.ExtendedSize,
		}
		return nil
	}
	sections, err := file.Sections()
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		return fmt.Errorf("file %v has no sections", file.Header.GUID)
	}
	section := sections[0]
	if !section.Header.Type.IsExecutable() && section.Header.Type != uefi.SectionTypeRaw {
		log.Debugf("file %v leads with a %v section", file.Header.GUID, section.Header.Type)
	}
	span.Section = section
	start := file.Offset + section.Offset
	span.PayloadSpan = Span{start + section.DataOffset, start + section.Size}
	return nil
}

// findPad looks at the slot after the file and fixes the combined
// window the patch may rewrite.
func (span *ModuleSpan) findPad(fv *uefi.FirmwareVolume, file *uefi.File) error {
	fileEnd := file.Offset + file.Header.ExtendedSize
	combinedEnd := uefi.Align8(fileEnd)
	if combinedEnd > fv.Length {
		combinedEnd = fv.Length
	}

	next := fv.NextFileOffset(file)
	if next <= fv.Length-uefi.FileHeaderMinLength {
		nextFile, err := fv.FileAt(next)
		if err != nil {
			return &NotVolumeError{Offset: fv.FVOffset + next, Err: err}
		}
		if nextFile != nil && nextFile.Header.Type == uefi.FVFileTypePad {
			span.Pad = nextFile
			combinedEnd = uefi.Align8(nextFile.Offset + nextFile.Header.ExtendedSize)
			if combinedEnd > fv.Length {
				combinedEnd = fv.Length
			}
		}
	}
	span.Combined = Span{file.Offset, combinedEnd}
	return nil
}
