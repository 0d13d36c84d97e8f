package uefi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FlashDescriptorMapSize is the size of the FLMAP register block.
const FlashDescriptorMapSize = 16

// FlashDescriptorMap mirrors the FLMAP0 to FLMAP3 registers that locate
// the other descriptor sections.
type FlashDescriptorMap struct {
	// FLMAP0
	ComponentBase      uint8
	NumberOfFlashChips uint8
	RegionBase         uint8
	NumberOfRegions    uint8
	// FLMAP1
	MasterBase        uint8
	NumberOfMasters   uint8
	PchStrapsBase     uint8
	NumberOfPchStraps uint8
	// FLMAP2
	ProcStrapsBase          uint8
	NumberOfProcStraps      uint8
	IccTableBase            uint8
	NumberOfIccTableEntries uint8
	// FLMAP3
	DmiTableBase            uint8
	NumberOfDmiTableEntries uint8
	Reserved0               uint8
	Reserved1               uint8
}

// NewFlashDescriptorMap parses the FLMAP registers at the start of buf.
func NewFlashDescriptorMap(buf []byte) (*FlashDescriptorMap, error) {
	if len(buf) < FlashDescriptorMapSize {
		return nil, fmt.Errorf("%#x bytes is too short for a descriptor map", len(buf))
	}
	var descriptor FlashDescriptorMap
	reader := bytes.NewReader(buf)
	if err := binary.Read(reader, binary.LittleEndian, &descriptor); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

func (d *FlashDescriptorMap) String() string {
	return fmt.Sprintf("FlashDescriptorMap{Regions: %d at %#x, Masters: %d at %#x, Components: %d at %#x}",
		d.NumberOfRegions, uint(d.RegionBase)*0x10,
		d.NumberOfMasters, uint(d.MasterBase)*0x10,
		d.NumberOfFlashChips, uint(d.ComponentBase)*0x10)
}
