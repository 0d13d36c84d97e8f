package uefi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FlashMasterSectionSize is the size of the master permission table.
const FlashMasterSectionSize = 12

// RegionPermissions holds the read and write grants of one flash
// master.
type RegionPermissions struct {
	ID    uint16
	Read  uint8
	Write uint8
}

func (p *RegionPermissions) String() string {
	return fmt.Sprintf("id %#x read %#02x write %#02x", p.ID, p.Read, p.Write)
}

// FlashMasterSection is the master table of the flash descriptor,
// listing what each controller may touch.
type FlashMasterSection struct {
	BIOS RegionPermissions
	ME   RegionPermissions
	GBE  RegionPermissions
}

// NewFlashMasterSection parses the master table at the start of buf.
func NewFlashMasterSection(buf []byte) (*FlashMasterSection, error) {
	if len(buf) < FlashMasterSectionSize {
		return nil, fmt.Errorf("%#x bytes is too short for a master section", len(buf))
	}
	var section FlashMasterSection
	reader := bytes.NewReader(buf)
	if err := binary.Read(reader, binary.LittleEndian, &section); err != nil {
		return nil, err
	}
	return &section, nil
}

func (s *FlashMasterSection) String() string {
	return fmt.Sprintf("FlashMasterSection{BIOS %v, ME %v, GbE %v}", &s.BIOS, &s.ME, &s.GBE)
}
