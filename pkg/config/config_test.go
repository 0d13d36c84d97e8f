package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"Name": "Intel",
		"Paths": {
			"ReferenceFw": "ref/fw.bin.lzma",
			"Input": "build/dxecore.bin",
			"Output": "out/fw_patched.bin"
		},
		"DxeCore": {
			"FfsGuid": "23c9322f-2af2-476a-bc4c-26bc88266c71",
			"Offset": "0x820048"
		},
		"Layout": [
			{"Name": "pei.core", "FileGuid": "52C05B14-0B98-496C-BC3B-04B50211D680", "Offset": "0x1000"}
		]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Intel", cfg.Name)
	assert.Equal(t, "ref/fw.bin.lzma", cfg.Paths.ReferenceFw)
	require.NoError(t, cfg.Validate())

	dir, err := cfg.LayoutDirectory()
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Len())

	entry, err := dir.Resolve(DXECoreEntryName)
	require.NoError(t, err)
	assert.Equal(t, *guid.MustParse("23C9322F-2AF2-476A-BC4C-26BC88266C71"), entry.FileGUID)
	assert.Equal(t, uint64(0x820048), entry.Offset)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := writeConfig(t, `{"Paths": `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestDefaultsApply(t *testing.T) {
	// An empty profile still resolves the DXE core by its stock GUID.
	cfg := &Config{}
	dir, err := cfg.LayoutDirectory()
	require.NoError(t, err)

	entry, err := dir.Resolve(DXECoreEntryName)
	require.NoError(t, err)
	assert.Equal(t, *guid.MustParse(DefaultDXECoreFFSGUID), entry.FileGUID)
	assert.Zero(t, entry.Offset)
}

func TestDxeCoreSectionWins(t *testing.T) {
	cfg := &Config{
		DxeCore: DxeCoreConfig{FfsGuid: "AAAAAAAA-0000-0000-0000-000000000001", Offset: "0x500000"},
		Layout: []EntryConfig{
			{Name: DXECoreEntryName, FileGuid: "BBBBBBBB-0000-0000-0000-000000000002", Offset: "0x100"},
		},
	}
	dir, err := cfg.LayoutDirectory()
	require.NoError(t, err)

	entry, err := dir.Resolve(DXECoreEntryName)
	require.NoError(t, err)
	assert.Equal(t, *guid.MustParse("AAAAAAAA-0000-0000-0000-000000000001"), entry.FileGUID)
	assert.Equal(t, uint64(0x500000), entry.Offset)
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := &Config{
		DxeCore: DxeCoreConfig{FfsGuid: "not-a-guid"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "reference firmware")
	assert.Contains(t, msg, "input payload")
	assert.Contains(t, msg, "output")
	assert.Contains(t, msg, "not-a-guid")
}

func TestBadLayoutNumbers(t *testing.T) {
	cfg := &Config{
		Layout: []EntryConfig{
			{Name: "x", FileGuid: DefaultDXECoreFFSGUID, Offset: "zz"},
		},
	}
	_, err := cfg.LayoutDirectory()
	assert.Error(t, err)
}
