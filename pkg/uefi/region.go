package uefi

// RegionBlockSize is the granularity of the region base and limit
// fields.
const RegionBlockSize = 0x1000

// FlashRegionType is the index of a region inside the region section.
type FlashRegionType int

// Flash region indices.
const (
	RegionTypeBIOS FlashRegionType = iota
	RegionTypeME
	RegionTypeGBE
	RegionTypePD
	RegionTypeDevExp1
	RegionTypeBIOS2
	RegionTypeMicrocode
	RegionTypeEC
	RegionTypeDevExp2
	RegionTypeIE
	RegionType10GbE1
	RegionType10GbE2
	RegionTypeReserved1
	RegionTypeReserved2
	RegionTypePTT

	RegionTypeUnknown FlashRegionType = -1
)

var flashRegionTypeNames = map[FlashRegionType]string{
	RegionTypeBIOS:      "BIOS",
	RegionTypeME:        "ME",
	RegionTypeGBE:       "GbE",
	RegionTypePD:        "PD",
	RegionTypeDevExp1:   "DevExp1",
	RegionTypeBIOS2:     "BIOS2",
	RegionTypeMicrocode: "Microcode",
	RegionTypeEC:        "EC",
	RegionTypeDevExp2:   "DevExp2",
	RegionTypeIE:        "IE",
	RegionType10GbE1:    "10GbE1",
	RegionType10GbE2:    "10GbE2",
	RegionTypePTT:       "PTT",
}

func (rt FlashRegionType) String() string {
	if name, ok := flashRegionTypeNames[rt]; ok {
		return name
	}
	return "Unknown"
}

// FlashRegion holds the base and limit of a single flash region, both
// counted in 4K blocks.
type FlashRegion struct {
	Base  uint16
	Limit uint16
}

// Valid reports whether the region is present and its limits make
// sense. An unused region reads back with a limit of zero.
func (r *FlashRegion) Valid() bool {
	return r.Limit > 0 && r.Limit >= r.Base
}

// BaseOffset returns the byte offset the region starts at.
func (r *FlashRegion) BaseOffset() uint32 {
	return uint32(r.Base) * RegionBlockSize
}

// EndOffset returns the byte offset just past the region.
func (r *FlashRegion) EndOffset() uint32 {
	return (uint32(r.Limit) + 1) * RegionBlockSize
}
