// Package config loads the patching profile of a firmware family: the
// involved file paths, the identity of the DXE core module, and the
// flash layout entries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
	"github.com/tinytoy-sec/FwPatcher/pkg/layout"
)

const (
	// DefaultDXECoreFFSGUID names the DXE core FFS file in images
	// produced by the stock build system.
	DefaultDXECoreFFSGUID = "23C9322F-2AF2-476A-BC4C-26BC88266C71"
	// DefaultDXEVolumeGUID names the firmware volume the DXE core
	// normally lives in.
	DefaultDXEVolumeGUID = "71DAD237-900F-4EA8-8DFD-93F8F8C704DF"
	// DXECoreEntryName is the layout entry name of the DXE core
	// region.
	DXECoreEntryName = "dxe.core"
)

// Config is one patching profile, usually loaded from a JSON file next
// to the firmware it describes.
type Config struct {
	Name    string        `json:"Name,omitempty"`
	Paths   PathsConfig   `json:"Paths"`
	DxeCore DxeCoreConfig `json:"DxeCore"`
	Layout  []EntryConfig `json:"Layout,omitempty"`
}

// PathsConfig holds the files a patch run works with.
type PathsConfig struct {
	// ReferenceFw is the firmware image to patch.
	ReferenceFw string `json:"ReferenceFw"`
	// Input is the replacement DXE core payload.
	Input string `json:"Input"`
	// Output is where the patched image goes.
	Output string `json:"Output"`
}

// DxeCoreConfig identifies the DXE core module inside the image.
type DxeCoreConfig struct {
	FfsGuid string `json:"FfsGuid,omitempty"`
	Offset  string `json:"Offset,omitempty"`
	Size    string `json:"Size,omitempty"`
}

// EntryConfig is one flash layout region. Numbers are strings so the
// usual 0x notation of flash maps survives the JSON trip.
type EntryConfig struct {
	Name     string `json:"Name"`
	FileGuid string `json:"FileGuid"`
	Offset   string `json:"Offset,omitempty"`
	Size     string `json:"Size,omitempty"`
}

// Load reads a profile from a JSON file.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks that the profile is complete enough to run a patch.
// All problems are reported at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Paths.ReferenceFw == "" {
		result = multierror.Append(result, fmt.Errorf("no reference firmware path"))
	}
	if c.Paths.Input == "" {
		result = multierror.Append(result, fmt.Errorf("no input payload path"))
	}
	if c.Paths.Output == "" {
		result = multierror.Append(result, fmt.Errorf("no output path"))
	}
	if _, err := c.LayoutDirectory(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// LayoutDirectory builds the layout directory of the profile: the
// Layout entries plus the DxeCore section, which always wins for the
// DXE core region. A profile without either still resolves the DXE
// core under its stock GUID.
func (c *Config) LayoutDirectory() (*layout.Directory, error) {
	var result *multierror.Error
	entries := make([]layout.Entry, 0, len(c.Layout)+1)

	for _, ec := range c.Layout {
		entry, err := ec.toEntry()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("layout entry %q: %v", ec.Name, err))
			continue
		}
		entries = append(entries, entry)
	}

	core := EntryConfig{
		Name:     DXECoreEntryName,
		FileGuid: c.DxeCore.FfsGuid,
		Offset:   c.DxeCore.Offset,
		Size:     c.DxeCore.Size,
	}
	if core.FileGuid == "" {
		core.FileGuid = DefaultDXECoreFFSGUID
	}
	entry, err := core.toEntry()
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("DxeCore: %v", err))
	} else {
		entries = append(entries, entry)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return layout.New(entries), nil
}

func (ec EntryConfig) toEntry() (layout.Entry, error) {
	if ec.Name == "" {
		return layout.Entry{}, fmt.Errorf("entry has no name")
	}
	g, err := guid.Parse(ec.FileGuid)
	if err != nil {
		return layout.Entry{}, fmt.Errorf("file GUID %q: %v", ec.FileGuid, err)
	}
	offset, err := parseNumber(ec.Offset)
	if err != nil {
		return layout.Entry{}, fmt.Errorf("offset %q: %v", ec.Offset, err)
	}
	size, err := parseNumber(ec.Size)
	if err != nil {
		return layout.Entry{}, fmt.Errorf("size %q: %v", ec.Size, err)
	}
	return layout.Entry{Name: ec.Name, FileGUID: *g, Offset: offset, Size: size}, nil
}

// parseNumber accepts decimal and the 0x notation of flash maps. The
// empty string reads as zero.
func parseNumber(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 0, 64)
}
