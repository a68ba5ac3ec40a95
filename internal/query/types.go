// Package query implements the search planner: turning a user search string
// with '*' and '?' wildcards into a set of subqueries, each a (possible
// logtypes, variable constraints) pair, via either the heuristic
// tokenizer or DFA intersection against the schema.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/clpgo/clpcore/internal/dictionary"
	"github.com/clpgo/clpcore/internal/varenc"
)

// TimeRange bounds a query. A zero Begin or End means unbounded on that
// side.
type TimeRange struct {
	Begin time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the range.
func (r TimeRange) Contains(ts time.Time) bool {
	if !r.Begin.IsZero() && ts.Before(r.Begin) {
		return false
	}
	if !r.End.IsZero() && ts.After(r.End) {
		return false
	}
	return true
}

// ConstraintKind distinguishes the three constraint forms a variable
// position can carry.
type ConstraintKind int

const (
	// ConstraintEncoded requires the slot to equal one exact encoded
	// value.
	ConstraintEncoded ConstraintKind = iota
	// ConstraintDictEntry requires the slot to reference one exact
	// dictionary entry.
	ConstraintDictEntry
	// ConstraintWildcardMatch is the imprecise form: the slot may
	// reference any of a set of dictionary entries, or (when
	// EncodedInSegment is set) any inline-encoded value; the caller must
	// re-check the decoded message against the wildcard.
	ConstraintWildcardMatch
)

// VarConstraint constrains one variable position of a subquery.
type VarConstraint struct {
	Kind    ConstraintKind
	Encoded int64
	Entry   *dictionary.VariableEntry

	PossibleEntries []*dictionary.VariableEntry
	// EncodedInSegment marks the companion interpretation: the variable
	// may be inline-encoded in the segment, so any non-dictionary slot
	// value passes this constraint pending the wildcard post-match.
	EncodedInSegment bool
}

// Satisfies reports whether a slot value can pass this constraint. For
// ConstraintWildcardMatch the answer is may-match: a true result still
// needs the subquery's wildcard re-check.
func (c VarConstraint) Satisfies(v int64) bool {
	switch c.Kind {
	case ConstraintEncoded:
		return v == c.Encoded
	case ConstraintDictEntry:
		return c.Entry != nil && v == varenc.EncodeDictID(c.Entry.ID)
	case ConstraintWildcardMatch:
		if c.EncodedInSegment && !varenc.IsDictID(v) {
			return true
		}
		for _, e := range c.PossibleEntries {
			if v == varenc.EncodeDictID(e.ID) {
				return true
			}
		}
		return false
	}
	return false
}

// Subquery is one concrete hypothesis about how the search string could
// have been encoded.
type Subquery struct {
	// LogtypePattern is the wildcard pattern (with embedded delimiter
	// bytes) that produced PossibleLogtypes.
	LogtypePattern string
	// PossibleLogtypes are the dictionary entries the pattern matched.
	PossibleLogtypes []*dictionary.LogtypeEntry
	// VarConstraints constrain the message's encoded variables in order.
	// There is one constraint per variable position in the pattern.
	VarConstraints []VarConstraint
	// WildcardMatchRequired means a candidate message must additionally
	// be decoded and matched against the raw search wildcard.
	WildcardMatchRequired bool
	// RequiredDictEntries are unordered extra dictionary constraints
	// contributed by field=value qualifiers: a matching message's
	// segment must contain every entry set listed here (each inner slice
	// is an OR over values for one field).
	RequiredDictEntries [][]*dictionary.VariableEntry
	// SegmentIDs are the ids of segments that could contain matches.
	SegmentIDs map[string]struct{}
}

// Query is the planner's result for one search string.
type Query struct {
	Subqueries   []Subquery
	TimeRange    TimeRange
	IgnoreCase   bool
	SearchString string
	// MatchesAll is the supersedes-all signal: the search matches every
	// message, so Subqueries is redundant and left empty.
	MatchesAll bool
}

// constraintsKey serializes a constraint list for subquery
// de-duplication: two subqueries are redundant only when both their
// logtype pattern and their constraints coincide.
func constraintsKey(cs []VarConstraint) string {
	var sb strings.Builder
	for _, c := range cs {
		switch c.Kind {
		case ConstraintEncoded:
			fmt.Fprintf(&sb, "e(%d)", c.Encoded)
		case ConstraintDictEntry:
			fmt.Fprintf(&sb, "d(%d)", c.Entry.ID)
		case ConstraintWildcardMatch:
			sb.WriteString("w(")
			for _, e := range c.PossibleEntries {
				fmt.Fprintf(&sb, "%d,", e.ID)
			}
			if c.EncodedInSegment {
				sb.WriteString("enc")
			}
			sb.WriteString(")")
		}
	}
	return sb.String()
}

// segmentsOf unions the segment ids of a set of logtype entries.
func segmentsOf(entries []*dictionary.LogtypeEntry) map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range entries {
		for _, s := range e.IDsOfSegmentsContainingEntry() {
			out[s] = struct{}{}
		}
	}
	return out
}

// intersectSegments narrows segs to those also present in a variable
// entry's segment set. An entry with no recorded segments contributes no
// narrowing (segment tracking is optional for in-memory archives).
func intersectSegments(segs map[string]struct{}, e *dictionary.VariableEntry) map[string]struct{} {
	varSegs := e.IDsOfSegmentsContainingEntry()
	if len(varSegs) == 0 || len(segs) == 0 {
		return segs
	}
	keep := map[string]struct{}{}
	for _, s := range varSegs {
		if _, ok := segs[s]; ok {
			keep[s] = struct{}{}
		}
	}
	return keep
}
