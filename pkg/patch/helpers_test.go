package patch

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
	"github.com/tinytoy-sec/FwPatcher/pkg/layout"
	"github.com/tinytoy-sec/FwPatcher/pkg/uefi"
)

const (
	coreGUID   = "23C9322F-2AF2-476A-BC4C-26BC88266C71"
	fillerGUID = "0A0A0A0A-1111-2222-3333-444455556666"
	otherGUID  = "0B0B0B0B-9999-8888-7777-666655554444"

	fvHeaderLen = 0x48
)

// fvBytes assembles a firmware volume holding the given files packed
// from the first slot, the rest erased.
func fvBytes(t *testing.T, length uint64, polarity uint8, files ...[]byte) []byte {
	t.Helper()
	require.Zero(t, length%0x1000, "volume length must be block aligned")

	buf := bytes.Repeat([]byte{polarity}, int(length))
	hdr := uefi.FirmwareVolumeFixedHeader{
		FileSystemGUID: *uefi.FFS2,
		Length:         length,
		Signature:      uefi.FVSignature,
		HeaderLen:      fvHeaderLen,
		Revision:       2,
	}
	if polarity == 0xFF {
		hdr.Attributes |= uefi.FVErasePolarityAttr
	}

	w := new(bytes.Buffer)
	require.NoError(t, binary.Write(w, binary.LittleEndian, &hdr))
	blocks := []uefi.Block{{Count: uint32(length / 0x1000), Size: 0x1000}, {}}
	require.NoError(t, binary.Write(w, binary.LittleEndian, blocks))
	copy(buf, w.Bytes())
	sealVolume(t, buf)

	offset := uint64(fvHeaderLen)
	for _, file := range files {
		require.LessOrEqual(t, offset+uint64(len(file)), length, "files overflow the volume")
		copy(buf[offset:], file)
		offset = uefi.Align8(offset + uint64(len(file)))
	}
	return buf
}

// sealVolume recomputes the volume header checksum in place.
func sealVolume(t *testing.T, buf []byte) {
	t.Helper()
	binary.LittleEndian.PutUint16(buf[50:52], 0)
	sum, err := uefi.Checksum16(buf[:fvHeaderLen])
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(buf[50:52], 0-sum)
}

// moduleBytes assembles an FFS file around payload, wrapped in one
// PE32 section unless the type is raw.
func moduleBytes(t *testing.T, g string, typ uefi.FVFileType, payload []byte, polarity uint8) []byte {
	t.Helper()
	f := uefi.File{}
	f.Header.GUID = *guid.MustParse(g)
	f.Header.Type = typ
	f.Header.Attributes |= uefi.FileAttrChecksum
	f.Header.SetState(uefi.FileStateValid, polarity)

	body := payload
	if typ != uefi.FVFileTypeRaw {
		body = uefi.AssembleSection(uefi.SectionTypePE32, payload)
	}
	f.Header.SetSize(f.Header.HeaderLen() + uint64(len(body)))
	f.Header.SetSize(f.Header.HeaderLen() + uint64(len(body)))
	require.NoError(t, f.ChecksumAndAssemble(body))
	return f.Buf()
}

func padBytes(t *testing.T, size uint64, polarity uint8) []byte {
	t.Helper()
	pad, err := uefi.CreatePadFile(size, polarity)
	require.NoError(t, err)
	return pad.Buf()
}

func parseFV(t *testing.T, buf []byte) *uefi.FirmwareVolume {
	t.Helper()
	fv, err := uefi.ParseFirmwareVolume(buf, 0)
	require.NoError(t, err)
	return fv
}

func coreEntry(offset uint64) layout.Entry {
	return layout.Entry{
		Name:     "dxe.core",
		FileGUID: *guid.MustParse(coreGUID),
		Offset:   offset,
		Size:     0x2000,
	}
}

// payloadOf builds a recognizable payload of the given length.
func payloadOf(length int) []byte {
	payload := make([]byte, length)
	for i := range payload {
		payload[i] = byte(i*7 + 3)
	}
	return payload
}

// standardImage builds the canonical test volume: a 0x10000 byte
// volume holding a filler driver, a 0x2000 byte DXE core at 0x148, a
// 0x1000 byte trailing pad and another driver behind the window.
//
// Layout: filler [0x48,0x148) core [0x148,0x2148) pad [0x2148,0x3148)
// other [0x3148,0x31c8) free space to 0x10000.
func standardImage(t *testing.T) []byte {
	t.Helper()
	return fvBytes(t, 0x10000, 0xFF,
		moduleBytes(t, fillerGUID, uefi.FVFileTypeDriver, payloadOf(0xE4), 0xFF),
		moduleBytes(t, coreGUID, uefi.FVFileTypeDXECore, payloadOf(0x1FE4), 0xFF),
		padBytes(t, 0x1000, 0xFF),
		moduleBytes(t, otherGUID, uefi.FVFileTypeDriver, payloadOf(0x64), 0xFF),
	)
}

const (
	stdCoreOffset  = uint64(0x148)
	stdCoreSize    = uint64(0x2000)
	stdPadOffset   = uint64(0x2148)
	stdPadSize     = uint64(0x1000)
	stdCombinedEnd = uint64(0x3148)
	stdOtherOffset = uint64(0x3148)
	stdMaxPayload  = 0x2FE4 // window minus file header and section header
	stdSamePayload = 0x1FE4 // keeps the file at its original size
)

// flashImageBytes prepends an Intel flash descriptor to a BIOS region,
// the same shape the uefi package builds for its own tests.
func flashImageBytes(t *testing.T, bios []byte) []byte {
	t.Helper()
	require.Zero(t, len(bios)%0x1000, "BIOS region must be block aligned")

	buf := bytes.Repeat([]byte{0xFF}, int(uefi.FlashDescriptorLength)+len(bios))
	copy(buf[16:20], uefi.FlashSignature)

	// FLMAP0: regions at 0x40, FLMAP1: masters at 0x60.
	flmap := buf[20:]
	flmap[0] = 0x03
	flmap[1] = 1
	flmap[2] = 0x04
	flmap[3] = 4
	flmap[4] = 0x06
	flmap[5] = 3

	biosBlocks := uint16(len(bios) / uefi.RegionBlockSize)
	binary.LittleEndian.PutUint16(buf[0x44:], 1)
	binary.LittleEndian.PutUint16(buf[0x46:], biosBlocks)

	for i := 0; i < uefi.FlashMasterSectionSize; i += 4 {
		binary.LittleEndian.PutUint16(buf[0x60+i:], 0)
		buf[0x60+i+2] = 0xFF
		buf[0x60+i+3] = 0xFF
	}

	copy(buf[uefi.FlashDescriptorLength:], bios)
	return buf
}

// setFilesystem swaps the filesystem GUID of an assembled volume and
// reseals the header checksum.
func setFilesystem(t *testing.T, buf []byte, fs guid.GUID) {
	t.Helper()
	w := new(bytes.Buffer)
	require.NoError(t, binary.Write(w, binary.LittleEndian, &fs))
	copy(buf[16:32], w.Bytes())
	sealVolume(t, buf)
}

func clone(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}
