package uefi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FlashRegionSectionSize is the size of the frozen register block
// holding the region table, 15 regions after one reserved word pair.
const FlashRegionSectionSize = 64

// FlashRegionSection is the region table of the flash descriptor.
type FlashRegionSection struct {
	_            uint16
	BlockEraseSz uint16
	FlashRegions [15]FlashRegion
}

// NewFlashRegionSection parses the region table at the start of buf.
func NewFlashRegionSection(buf []byte) (*FlashRegionSection, error) {
	if len(buf) < FlashRegionSectionSize {
		return nil, fmt.Errorf("%#x bytes is too short for a region section", len(buf))
	}
	var section FlashRegionSection
	reader := bytes.NewReader(buf)
	if err := binary.Read(reader, binary.LittleEndian, &section); err != nil {
		return nil, err
	}
	return &section, nil
}

func (s *FlashRegionSection) String() string {
	var b bytes.Buffer
	fmt.Fprint(&b, "FlashRegionSection{")
	first := true
	for i := range s.FlashRegions {
		region := &s.FlashRegions[i]
		if !region.Valid() {
			continue
		}
		if !first {
			fmt.Fprint(&b, ", ")
		}
		first = false
		fmt.Fprintf(&b, "%v: %#x-%#x", FlashRegionType(i), region.BaseOffset(), region.EndOffset())
	}
	fmt.Fprint(&b, "}")
	return b.String()
}
