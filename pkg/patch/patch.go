package patch

import (
	"errors"
	"fmt"

	"github.com/tinytoy-sec/FwPatcher/pkg/layout"
	"github.com/tinytoy-sec/FwPatcher/pkg/log"
	"github.com/tinytoy-sec/FwPatcher/pkg/uefi"
)

// LoadLayout builds the layout directory for an image family.
func LoadLayout(entries []layout.Entry) *layout.Directory {
	return layout.New(entries)
}

// Patch returns a copy of image with the module described by target
// replaced by payload. The input image works both as a bare firmware
// volume, a raw BIOS region dump, and a full flash image led by an
// Intel descriptor; target.Offset counts from the start of the image
// either way. The input slice is never modified.
func Patch(image, payload []byte, target layout.Entry) ([]byte, error) {
	out := make([]byte, len(image))
	copy(out, image)

	candidates, err := candidateVolumes(out, target)
	if err != nil {
		return nil, err
	}

	volumesViewed, filesViewed := 0, 0
	for _, cand := range candidates {
		span, err := Locate(cand.fv, cand.hint)
		if err != nil {
			var notFound *ModuleNotFoundError
			if errors.As(err, &notFound) {
				volumesViewed += notFound.VolumesViewed
				filesViewed += notFound.FilesViewed
				log.Debugf("volume at %#x does not hold %v", cand.fv.FVOffset, target.FileGUID)
				continue
			}
			return nil, err
		}

		plan, err := Plan(span, payload)
		if err != nil {
			return nil, err
		}
		if err := Apply(plan); err != nil {
			return nil, err
		}
		log.Infof("replaced %v at %#x: %#x -> %#x byte file, window %#x bytes",
			target.FileGUID, cand.fv.FVOffset+span.FileSpan.Start,
			span.FileSpan.Len(), plan.NewFileSize, span.Combined.Len())
		return out, nil
	}

	return nil, &ModuleNotFoundError{
		GUID:          target.FileGUID,
		VolumesViewed: volumesViewed,
		FilesViewed:   filesViewed,
	}
}

type candidate struct {
	fv   *uefi.FirmwareVolume
	hint layout.Entry
}

// candidateVolumes lists the volumes of the image that could hold the
// target, the one containing the hinted offset first. Volume hints are
// rebased from image offsets to volume offsets.
func candidateVolumes(buf []byte, target layout.Entry) ([]candidate, error) {
	region := buf
	base := uint64(0)

	if uefi.IsFlashImage(buf) {
		img, err := uefi.ParseFlashImage(buf)
		if err != nil {
			return nil, &NotVolumeError{Offset: 0, Err: err}
		}
		start, end, err := img.BIOSBounds()
		if err != nil {
			return nil, &NotVolumeError{Offset: 0, Err: err}
		}
		log.Debugf("flash image, BIOS region %#x-%#x, %v", start, end, img.IFD.DescriptorMap)
		region = buf[start:end]
		base = start
	}

	fvs := uefi.ScanFirmwareVolumes(region, base)
	if len(fvs) == 0 {
		return nil, &NotVolumeError{Offset: base, Err: fmt.Errorf("no firmware volumes found")}
	}

	candidates := make([]candidate, 0, len(fvs))
	preferred := -1
	for i, fv := range fvs {
		hint := target
		if fv.FVOffset <= target.Offset && target.Offset < fv.FVOffset+fv.Length {
			hint.Offset = target.Offset - fv.FVOffset
			preferred = i
		} else {
			// An offset of zero lands on the volume header and never
			// on a file, so the locator skips the fast path.
			hint.Offset = 0
		}
		candidates = append(candidates, candidate{fv: fv, hint: hint})
	}
	if preferred > 0 {
		candidates[0], candidates[preferred] = candidates[preferred], candidates[0]
	}
	if preferred < 0 && target.Offset != 0 {
		log.Warnf("no volume covers the hinted offset %#x, scanning all %d volume(s)",
			target.Offset, len(fvs))
	}
	return candidates, nil
}
