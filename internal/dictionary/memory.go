package dictionary

import (
	"fmt"

	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/logtype"
)

// MemoryVariableDictionary is the process-local VariableDictionary used
// by tests and by archives that never need persistence.
type MemoryVariableDictionary struct {
	entries []*VariableEntry
	byValue map[string]uint64
}

func NewMemoryVariableDictionary() *MemoryVariableDictionary {
	return &MemoryVariableDictionary{byValue: map[string]uint64{}}
}

func (d *MemoryVariableDictionary) AddEntry(value string) (uint64, bool, error) {
	if id, ok := d.byValue[value]; ok {
		return id, false, nil
	}
	id := uint64(len(d.entries))
	d.entries = append(d.entries, &VariableEntry{
		ID:       id,
		Value:    value,
		segments: map[string]struct{}{},
	})
	d.byValue[value] = id
	return id, true, nil
}

func (d *MemoryVariableDictionary) AssociateSegment(id uint64, segmentID string) error {
	if id >= uint64(len(d.entries)) {
		return fmt.Errorf("%w: no variable entry with id %d", clperr.BadParam, id)
	}
	d.entries[id].segments[segmentID] = struct{}{}
	return nil
}

func (d *MemoryVariableDictionary) EntryMatchingValue(value string, ignoreCase bool) (*VariableEntry, bool) {
	if !ignoreCase {
		if id, ok := d.byValue[value]; ok {
			return d.entries[id], true
		}
		return nil, false
	}
	lowered := lowerASCII(value)
	for _, e := range d.entries {
		if lowerASCII(e.Value) == lowered {
			return e, true
		}
	}
	return nil, false
}

func (d *MemoryVariableDictionary) EntriesMatchingWildcard(pattern string, ignoreCase bool) []*VariableEntry {
	var out []*VariableEntry
	for _, e := range d.entries {
		if WildcardMatch(pattern, e.Value, ignoreCase) {
			out = append(out, e)
		}
	}
	return out
}

func (d *MemoryVariableDictionary) GetValue(id uint64) (string, error) {
	if id >= uint64(len(d.entries)) {
		return "", fmt.Errorf("%w: no variable entry with id %d", clperr.BadParam, id)
	}
	return d.entries[id].Value, nil
}

// MemoryLogtypeDictionary is the process-local LogtypeDictionary.
type MemoryLogtypeDictionary struct {
	mode    logtype.Mode
	entries []*LogtypeEntry
	byValue map[string]uint64
}

func NewMemoryLogtypeDictionary(mode logtype.Mode) *MemoryLogtypeDictionary {
	return &MemoryLogtypeDictionary{mode: mode, byValue: map[string]uint64{}}
}

func (d *MemoryLogtypeDictionary) AddEntry(value []byte) (uint64, bool, error) {
	key := string(value)
	if id, ok := d.byValue[key]; ok {
		return id, false, nil
	}
	id := uint64(len(d.entries))
	stored := append([]byte(nil), value...)
	d.entries = append(d.entries, &LogtypeEntry{
		ID:       id,
		Value:    stored,
		Mode:     d.mode,
		vars:     logtype.ParseVars(stored, d.mode),
		segments: map[string]struct{}{},
	})
	d.byValue[key] = id
	return id, true, nil
}

func (d *MemoryLogtypeDictionary) AssociateSegment(id uint64, segmentID string) error {
	if id >= uint64(len(d.entries)) {
		return fmt.Errorf("%w: no logtype entry with id %d", clperr.BadParam, id)
	}
	d.entries[id].segments[segmentID] = struct{}{}
	return nil
}

func (d *MemoryLogtypeDictionary) EntriesMatchingWildcard(pattern string, ignoreCase bool) []*LogtypeEntry {
	var out []*LogtypeEntry
	for _, e := range d.entries {
		if WildcardMatch(pattern, string(e.Value), ignoreCase) {
			out = append(out, e)
		}
	}
	return out
}

// GetEntry returns the entry with the given id.
func (d *MemoryLogtypeDictionary) GetEntry(id uint64) (*LogtypeEntry, bool) {
	if id >= uint64(len(d.entries)) {
		return nil, false
	}
	return d.entries[id], true
}
