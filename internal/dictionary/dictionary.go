// Package dictionary implements the variable and logtype dictionaries:
// interning tables mapping variable strings and logtype byte sequences
// to compact ids, with exact and wildcard lookup for the query planner.
// Two implementations are provided: an in-memory one and a SQLite-backed
// one. A dictionary has an exclusive writer; concurrent writer+reader
// access on the same dictionary is unsupported.
package dictionary

import (
	"github.com/clpgo/clpcore/internal/logtype"
)

// VariableEntry is one interned variable string.
type VariableEntry struct {
	ID    uint64
	Value string

	segments map[string]struct{}
}

// IDsOfSegmentsContainingEntry returns the ids of the segments this
// entry's variable occurs in.
func (e *VariableEntry) IDsOfSegmentsContainingEntry() []string {
	out := make([]string, 0, len(e.segments))
	for s := range e.segments {
		out = append(out, s)
	}
	return out
}

// LogtypeEntry is one interned logtype.
type LogtypeEntry struct {
	ID    uint64
	Value []byte
	Mode  logtype.Mode

	vars     []logtype.VarInfo
	segments map[string]struct{}
}

// NumVars returns the number of variable positions in the logtype.
func (e *LogtypeEntry) NumVars() int { return len(e.vars) }

// GetVarInfo returns the i'th variable's byte offset, delimiter kind and
// schema tag (HasTag false in heuristic mode).
func (e *LogtypeEntry) GetVarInfo(i int) (logtype.VarInfo, bool) {
	if i < 0 || i >= len(e.vars) {
		return logtype.VarInfo{}, false
	}
	return e.vars[i], true
}

// GetValue returns the raw logtype bytes.
func (e *LogtypeEntry) GetValue() []byte { return e.Value }

// IDsOfSegmentsContainingEntry returns the ids of the segments holding
// messages with this logtype.
func (e *LogtypeEntry) IDsOfSegmentsContainingEntry() []string {
	out := make([]string, 0, len(e.segments))
	for s := range e.segments {
		out = append(out, s)
	}
	return out
}

// VariableDictionaryWriter is the encoder-side interface.
type VariableDictionaryWriter interface {
	AddEntry(value string) (id uint64, isNew bool, err error)
	// AssociateSegment records that the variable with the given id occurs
	// in a segment.
	AssociateSegment(id uint64, segmentID string) error
}

// VariableDictionaryReader is the query-planner-side interface. Readers
// observe a point-in-time snapshot.
type VariableDictionaryReader interface {
	EntryMatchingValue(value string, ignoreCase bool) (*VariableEntry, bool)
	EntriesMatchingWildcard(pattern string, ignoreCase bool) []*VariableEntry
	GetValue(id uint64) (string, error)
}

// VariableDictionary combines both sides.
type VariableDictionary interface {
	VariableDictionaryWriter
	VariableDictionaryReader
}

// LogtypeDictionaryWriter is the encoder-side interface.
type LogtypeDictionaryWriter interface {
	AddEntry(value []byte) (id uint64, isNew bool, err error)
	AssociateSegment(id uint64, segmentID string) error
}

// LogtypeDictionaryReader is the query-planner-side interface.
type LogtypeDictionaryReader interface {
	EntriesMatchingWildcard(pattern string, ignoreCase bool) []*LogtypeEntry
}

// LogtypeDictionary combines both sides.
type LogtypeDictionary interface {
	LogtypeDictionaryWriter
	LogtypeDictionaryReader
}
