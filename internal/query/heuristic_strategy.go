package query

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/dictionary"
	"github.com/clpgo/clpcore/internal/heuristic"
	"github.com/clpgo/clpcore/internal/logtype"
	"github.com/clpgo/clpcore/internal/varenc"
)

// maxAssignments bounds the ambiguous-role product enumeration. When a
// search string exceeds it, the remaining assignments are skipped and a
// warning names the search string and the cap, so an over-broad plan is
// visible rather than silent.
const maxAssignments = 4096

// HeuristicPlanner is the schema-free planning strategy: it splits the
// sanitized search string with the heuristic tokenizer, enumerates
// every assignment of ambiguous tokens to concrete roles, and emits one
// subquery per assignment whose logtype pattern matches the dictionary.
type HeuristicPlanner struct {
	tok     *heuristic.Tokenizer
	varDict dictionary.VariableDictionaryReader
	ltDict  dictionary.LogtypeDictionaryReader
	logger  *slog.Logger
}

// HeuristicPlannerParams configures a HeuristicPlanner. Delimiters must
// match the delimiter set the archive was encoded with.
type HeuristicPlannerParams struct {
	Delimiters []byte
	VarDict    dictionary.VariableDictionaryReader
	LtDict     dictionary.LogtypeDictionaryReader
	Logger     *slog.Logger
}

func NewHeuristicPlanner(p HeuristicPlannerParams) *HeuristicPlanner {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HeuristicPlanner{
		tok:     heuristic.New(p.Delimiters),
		varDict: p.VarDict,
		ltDict:  p.LtDict,
		logger:  logger,
	}
}

// tokenRole is one concrete reading of a query token.
type tokenRole int

const (
	roleStatic tokenRole = iota
	// roleWildcard is a pure-'*' token.
	roleWildcard
	// roleVarConcrete is a wildcard-free variable: int/float encodable or
	// an exact dictionary value.
	roleVarConcrete
	// roleVarNonDouble is a wildcarded variable read as a dictionary,
	// integer or hex variable (NonDouble slot).
	roleVarNonDouble
	// roleVarDouble is a wildcarded variable read as an inline-encoded
	// float (Double slot).
	roleVarDouble
)

func allStars(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '*' {
			return false
		}
	}
	return len(s) > 0
}

// writeVarPlaceholder writes a wildcarded variable's placeholder byte,
// carrying a leading or trailing '*' of the token onto the logtype
// pattern so the static text around the placeholder still matches.
func writeVarPlaceholder(pattern *strings.Builder, text string, delim byte) {
	if text[0] == '*' {
		pattern.WriteByte('*')
	}
	pattern.WriteByte(delim)
	if text[len(text)-1] == '*' {
		pattern.WriteByte('*')
	}
}

// rolesFor lists the possible readings of one heuristic token: static,
// pure wildcard, concrete variable, or ambiguous (enumerated as the
// product of its concrete readings).
func rolesFor(text string, tk heuristic.Token) []tokenRole {
	if allStars(text) {
		return []tokenRole{roleWildcard}
	}
	if !tk.ContainsWildcard {
		if tk.IsVar {
			return []tokenRole{roleVarConcrete}
		}
		return []tokenRole{roleStatic}
	}
	if tk.IsVar {
		// A digit-bearing token matches only variables, but the variable
		// could live in a NonDouble or a Double slot.
		return []tokenRole{roleVarNonDouble, roleVarDouble}
	}
	return []tokenRole{roleStatic, roleVarNonDouble, roleVarDouble}
}

// Plan implements the heuristic strategy.
func (h *HeuristicPlanner) Plan(search string, ignoreCase bool, tr TimeRange) (*Query, error) {
	if search == "" {
		return nil, fmt.Errorf("%w: empty search string", clperr.BadParam)
	}
	q := &Query{TimeRange: tr, IgnoreCase: ignoreCase, SearchString: search}

	s := Sanitize(search)
	if s == "*" {
		q.MatchesAll = true
		return q, nil
	}

	tokens := h.tok.Tokenize(s)
	roles := make([][]tokenRole, len(tokens))
	total := 1
	anyWildcard := false
	for i, tk := range tokens {
		roles[i] = rolesFor(s[tk.Begin:tk.End], tk)
		if tk.ContainsWildcard {
			anyWildcard = true
		}
		if total < maxAssignments {
			total *= len(roles[i])
		}
	}
	if total > maxAssignments {
		h.logger.Warn("ambiguous search string, truncating role enumeration",
			slog.String("search", search),
			slog.Int("cap", maxAssignments))
	}

	seen := map[string]bool{}
	assignment := make([]int, len(tokens))
	for n := 0; ; n++ {
		if n >= maxAssignments {
			break
		}
		matchesAll, err := h.planAssignment(q, s, tokens, roles, assignment, ignoreCase, anyWildcard, seen)
		if err != nil {
			return nil, err
		}
		if matchesAll {
			q.MatchesAll = true
			q.Subqueries = nil
			return q, nil
		}
		if !nextAssignment(assignment, roles) {
			break
		}
	}
	return q, nil
}

// nextAssignment advances the mixed-radix role counter; false means the
// product is exhausted.
func nextAssignment(assignment []int, roles [][]tokenRole) bool {
	for i := len(assignment) - 1; i >= 0; i-- {
		assignment[i]++
		if assignment[i] < len(roles[i]) {
			return true
		}
		assignment[i] = 0
	}
	return false
}

func (h *HeuristicPlanner) planAssignment(
	q *Query,
	s string,
	tokens []heuristic.Token,
	roles [][]tokenRole,
	assignment []int,
	ignoreCase bool,
	anyWildcard bool,
	seen map[string]bool,
) (matchesAll bool, err error) {
	var pattern strings.Builder
	pattern.Grow(len(s))
	var constraints []VarConstraint
	imprecise := false
	prevEnd := 0

	for i, tk := range tokens {
		pattern.WriteString(s[prevEnd:tk.Begin])
		prevEnd = tk.End
		text := s[tk.Begin:tk.End]
		switch roles[i][assignment[i]] {
		case roleStatic:
			pattern.WriteString(text)
		case roleWildcard:
			pattern.WriteByte('*')
		case roleVarConcrete:
			if v, ok := varenc.EncodeInteger(text); ok {
				pattern.WriteByte(logtype.DelimNonDouble)
				constraints = append(constraints, VarConstraint{Kind: ConstraintEncoded, Encoded: v})
				continue
			}
			if v, ok := varenc.EncodeFloat(text); ok {
				pattern.WriteByte(logtype.DelimDouble)
				constraints = append(constraints, VarConstraint{Kind: ConstraintEncoded, Encoded: v})
				continue
			}
			entry, found := h.varDict.EntryMatchingValue(text, ignoreCase)
			if !found {
				// The exact variable was never interned: this assignment
				// cannot match anything.
				return false, nil
			}
			pattern.WriteByte(logtype.DelimNonDouble)
			constraints = append(constraints, VarConstraint{Kind: ConstraintDictEntry, Entry: entry})
		case roleVarNonDouble:
			entries := h.varDict.EntriesMatchingWildcard(text, ignoreCase)
			writeVarPlaceholder(&pattern, text, logtype.DelimNonDouble)
			constraints = append(constraints, VarConstraint{
				Kind:             ConstraintWildcardMatch,
				PossibleEntries:  entries,
				EncodedInSegment: true,
			})
			imprecise = true
		case roleVarDouble:
			writeVarPlaceholder(&pattern, text, logtype.DelimDouble)
			constraints = append(constraints, VarConstraint{
				Kind:             ConstraintWildcardMatch,
				EncodedInSegment: true,
			})
			imprecise = true
		}
	}
	pattern.WriteString(s[prevEnd:])

	pat := pattern.String()
	if pat == "*" {
		return true, nil
	}
	dedupKey := pat + "|" + constraintsKey(constraints)
	if seen[dedupKey] {
		return false, nil
	}
	seen[dedupKey] = true

	ltEntries := h.ltDict.EntriesMatchingWildcard(pat, ignoreCase)
	if len(ltEntries) == 0 {
		return false, nil
	}
	segs := segmentsOf(ltEntries)
	for _, c := range constraints {
		if c.Kind == ConstraintDictEntry {
			segs = intersectSegments(segs, c.Entry)
		}
	}
	q.Subqueries = append(q.Subqueries, Subquery{
		LogtypePattern:        pat,
		PossibleLogtypes:      ltEntries,
		VarConstraints:        constraints,
		WildcardMatchRequired: imprecise || anyWildcard,
		SegmentIDs:            segs,
	})
	return false, nil
}
