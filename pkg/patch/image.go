package patch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tinytoy-sec/FwPatcher/pkg/compression"
	"github.com/tinytoy-sec/FwPatcher/pkg/log"
)

// ReadImage loads a firmware image from disk. Reference images shipped
// compressed as .lzma are decompressed transparently.
func ReadImage(path string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	if strings.EqualFold(filepath.Ext(path), ".lzma") {
		codec := compression.LZMA{}
		decoded, err := codec.Decode(buf)
		if err != nil {
			return nil, &IOError{Op: "decompress", Path: path, Err: err}
		}
		log.Debugf("decompressed %s from %#x to %#x bytes", path, len(buf), len(decoded))
		return decoded, nil
	}
	return buf, nil
}

// WriteImage writes an image to disk, creating the directory when it
// does not exist yet.
func WriteImage(path string, buf []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &IOError{Op: "create directory for", Path: path, Err: err}
		}
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
