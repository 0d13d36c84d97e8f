// Package layout holds the flash map of a firmware image: named
// regions, the GUIDs of the modules living in them, and their nominal
// offsets. Offsets are hints for locating a module quickly, the image
// itself stays the source of truth.
package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tinytoy-sec/FwPatcher/pkg/guid"
)

// ErrNotFound is returned when no layout entry matches a query.
var ErrNotFound = errors.New("no matching layout entry")

// Entry describes one region of the flash map.
type Entry struct {
	// Name of the region, unique within a directory.
	Name string
	// FileGUID of the FFS file expected in the region.
	FileGUID guid.GUID
	// Offset of the region within the image. It is nominal: the image
	// may have shifted since the map was written.
	Offset uint64
	// Size of the region. Zero when unknown.
	Size uint64
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %v at %#x", e.Name, e.FileGUID, e.Offset)
}

// Directory is an immutable set of layout entries.
type Directory struct {
	entries []Entry
	byName  map[string]int
}

// New builds a directory from entries. Later duplicates of a name win,
// matching how map files override each other.
func New(entries []Entry) *Directory {
	d := Directory{
		entries: make([]Entry, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	copy(d.entries, entries)
	for i, entry := range d.entries {
		d.byName[entry.Name] = i
	}
	return &d
}

// Entries returns the entries sorted by offset.
func (d *Directory) Entries() []Entry {
	entries := make([]Entry, len(d.entries))
	copy(entries, d.entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Offset < entries[j].Offset
	})
	return entries
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Resolve finds the entry whose name equals query, or failing that,
// whose file GUID parses equal to query. GUID matching is
// case-insensitive, names are not.
func (d *Directory) Resolve(query string) (Entry, error) {
	if i, ok := d.byName[query]; ok {
		return d.entries[i], nil
	}
	if g, err := guid.Parse(query); err == nil {
		for _, entry := range d.entries {
			if entry.FileGUID == *g {
				return entry, nil
			}
		}
	}
	return Entry{}, fmt.Errorf("%q: %w", query, ErrNotFound)
}

// ResolveGUID finds the entry for a file GUID.
func (d *Directory) ResolveGUID(g guid.GUID) (Entry, error) {
	for _, entry := range d.entries {
		if entry.FileGUID == g {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("%v: %w", g, ErrNotFound)
}

// Names returns the entry names joined for error messages.
func (d *Directory) Names() string {
	names := make([]string, 0, len(d.entries))
	for _, entry := range d.Entries() {
		names = append(names, entry.Name)
	}
	return strings.Join(names, ", ")
}
