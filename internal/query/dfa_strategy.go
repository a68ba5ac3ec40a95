package query

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/clpgo/clpcore/internal/automaton"
	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/dictionary"
	"github.com/clpgo/clpcore/internal/lexer"
	"github.com/clpgo/clpcore/internal/logtype"
	"github.com/clpgo/clpcore/internal/schema"
	"github.com/clpgo/clpcore/internal/varenc"
)

// maxInterpretations bounds how many candidate interpretations are
// turned into subqueries. Overflow is logged, never silent.
const maxInterpretations = 256

// queryTokenKind distinguishes the two interpretation members.
type queryTokenKind int

const (
	staticQueryToken queryTokenKind = iota
	variableQueryToken
)

// queryToken is one element of a QueryInterpretation.
type queryToken struct {
	kind        queryTokenKind
	typeID      int
	text        string
	hasWildcard bool
	// isEncoded marks the companion interpretation: the variable is
	// inline-encoded in the segment rather than dictionary-interned.
	isEncoded bool
}

type interpretation []queryToken

func (in interpretation) key() string {
	var sb strings.Builder
	for _, t := range in {
		if t.kind == staticQueryToken {
			fmt.Fprintf(&sb, "s(%s)", t.text)
		} else {
			fmt.Fprintf(&sb, "v(%d,%s,%v)", t.typeID, t.text, t.isEncoded)
		}
	}
	return sb.String()
}

// compareInterpretations is the total order used to rank candidates:
// shorter before longer; same length ordered by the static-vs-variable
// pattern, then by the contained strings, then by variable type.
func compareInterpretations(a, b interpretation) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	for i := range a {
		if a[i].kind != b[i].kind {
			return int(a[i].kind) - int(b[i].kind)
		}
	}
	for i := range a {
		if c := strings.Compare(a[i].text, b[i].text); c != 0 {
			return c
		}
	}
	for i := range a {
		if a[i].kind == variableQueryToken {
			if c := a[i].typeID - b[i].typeID; c != 0 {
				return c
			}
		}
	}
	return 0
}

// DFAPlanner is the schema-aware planning strategy: it asks, for each
// delimiter- or wildcard-bounded substring of the search string, which
// schema variable types could match it (via DFA intersection, or via a
// reverse scan for pure prefix-wildcard substrings), assembles candidate
// interpretations with a table keyed by end position, and emits one
// subquery per surviving interpretation.
type DFAPlanner struct {
	sch      *schema.Schema
	varDFA   *automaton.DFA
	revLexer *lexer.Lexer
	varDict  dictionary.VariableDictionaryReader
	ltDict   dictionary.LogtypeDictionaryReader
	logger   *slog.Logger

	typeCache map[string][]int
}

// DFAPlannerParams configures a DFAPlanner.
type DFAPlannerParams struct {
	Schema  *schema.Schema
	VarDict dictionary.VariableDictionaryReader
	LtDict  dictionary.LogtypeDictionaryReader
	Logger  *slog.Logger
}

func NewDFAPlanner(p DFAPlannerParams) (*DFAPlanner, error) {
	if p.Schema == nil {
		return nil, fmt.Errorf("%w: DFAPlanner requires a schema", clperr.BadParam)
	}
	varRules := p.Schema.VarRules()
	nfa, err := automaton.Build(varRules)
	if err != nil {
		return nil, fmt.Errorf("error compiling schema variable rules: %w", err)
	}
	rev, err := automaton.BuildReversed(varRules)
	if err != nil {
		return nil, fmt.Errorf("error compiling reversed schema variable rules: %w", err)
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DFAPlanner{
		sch:       p.Schema,
		varDFA:    automaton.Compile(nfa),
		revLexer:  lexer.New(automaton.Compile(rev), nil),
		varDict:   p.VarDict,
		ltDict:    p.LtDict,
		logger:    logger,
		typeCache: map[string][]int{},
	}, nil
}

// regexFromWildcard turns a query substring into a regex over the
// schema's regex subset: specials are escaped and each '*' becomes ".*".
func regexFromWildcard(piece string) string {
	var sb strings.Builder
	sb.Grow(len(piece) + 4)
	for i := 0; i < len(piece); i++ {
		c := piece[i]
		switch c {
		case '*':
			sb.WriteString(".*")
		case '(', ')', '[', ']', '+', '?', '|', '\\', '.':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// typesFor returns the schema variable rule ids whose language has a
// non-empty intersection with the wildcarded substring. A substring of
// the form "*literal" is classified by reading the literal right to left
// against the reversed-rule DFA; everything else goes
// through product-automaton intersection.
func (d *DFAPlanner) typesFor(piece string) []int {
	if ids, ok := d.typeCache[piece]; ok {
		return ids
	}
	var ids []int
	if strings.HasPrefix(piece, "*") && !strings.Contains(piece[1:], "*") && len(piece) > 1 {
		ids = d.revLexer.ReverseScan(piece[1:])
	} else {
		nfa, err := automaton.Build([]automaton.Rule{{Name: "query", Pattern: regexFromWildcard(piece), RuleID: 0}})
		if err != nil {
			d.logger.Warn("error compiling query substring, treating as static",
				slog.String("piece", piece),
				slog.Any("error", err))
			d.typeCache[piece] = nil
			return nil
		}
		pieceDFA := automaton.Compile(nfa)
		ids = automaton.Intersect(d.varDFA, pieceDFA)
	}
	d.typeCache[piece] = ids
	return ids
}

func (d *DFAPlanner) isDelim(c byte) bool { return d.sch.IsDelimiter(c) }

// breakPositions lists the offsets where an interpretation token may
// begin or end: string edges plus both sides of every delimiter or
// wildcard byte.
func (d *DFAPlanner) breakPositions(s string) []int {
	set := map[int]bool{0: true, len(s): true}
	for i := 0; i < len(s); i++ {
		if d.isDelim(s[i]) || s[i] == '*' {
			set[i] = true
			set[i+1] = true
		}
	}
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func (d *DFAPlanner) containsDelim(piece string) bool {
	for i := 0; i < len(piece); i++ {
		if d.isDelim(piece[i]) {
			return true
		}
	}
	return false
}

// appendStatic extends an interpretation with static text, merging into
// a trailing static token so equivalent splits collapse to one form.
func appendStatic(in interpretation, text string) interpretation {
	out := append(interpretation(nil), in...)
	if n := len(out); n > 0 && out[n-1].kind == staticQueryToken {
		merged := out[n-1]
		merged.text += text
		out[n-1] = merged
		return out
	}
	return append(out, queryToken{kind: staticQueryToken, text: text})
}

// Plan implements the DFA-intersection strategy.
func (d *DFAPlanner) Plan(search string, ignoreCase bool, tr TimeRange) (*Query, error) {
	if search == "" {
		return nil, fmt.Errorf("%w: empty search string", clperr.BadParam)
	}
	q := &Query{TimeRange: tr, IgnoreCase: ignoreCase, SearchString: search}

	s := Sanitize(search)
	if s == "*" {
		q.MatchesAll = true
		return q, nil
	}

	candidates := d.interpret(s)
	anyWildcard := strings.Contains(search, "*") || strings.Contains(search, "?")

	seen := map[string]bool{}
	for _, cand := range candidates {
		for _, expanded := range expandCompanions(cand) {
			d.planInterpretation(q, expanded, ignoreCase, anyWildcard, seen)
		}
	}
	return q, nil
}

// interpret runs the end-position table over the sanitized string and
// returns the de-duplicated candidate interpretations, ranked.
func (d *DFAPlanner) interpret(s string) []interpretation {
	breaks := d.breakPositions(s)
	table := map[int][]interpretation{0: {nil}}
	keys := map[int]map[string]bool{0: {"": true}}

	for _, end := range breaks {
		if end == 0 {
			continue
		}
		for _, start := range breaks {
			if start >= end || len(table[start]) == 0 {
				continue
			}
			piece := s[start:end]
			// A wildcard adjacent to the piece is shared: it can extend
			// the variable's own text while still matching surrounding
			// static content, so variable readings are generated both
			// with and without the neighboring '*'.
			var varTexts []string
			if !d.containsDelim(piece) && !allStars(piece) {
				prefixes := []string{""}
				if start > 0 && s[start-1] == '*' && piece[0] != '*' {
					prefixes = append(prefixes, "*")
				}
				suffixes := []string{""}
				if end < len(s) && s[end] == '*' && piece[len(piece)-1] != '*' {
					suffixes = append(suffixes, "*")
				}
				for _, pre := range prefixes {
					for _, suf := range suffixes {
						varTexts = append(varTexts, pre+piece+suf)
					}
				}
			}
			if keys[end] == nil {
				keys[end] = map[string]bool{}
			}
			for _, prefix := range table[start] {
				ext := appendStatic(prefix, piece)
				if k := ext.key(); !keys[end][k] {
					keys[end][k] = true
					table[end] = append(table[end], ext)
				}
				for _, text := range varTexts {
					for _, typeID := range d.typesFor(text) {
						ext := append(append(interpretation(nil), prefix...), queryToken{
							kind:        variableQueryToken,
							typeID:      typeID,
							text:        text,
							hasWildcard: strings.Contains(text, "*"),
						})
						if k := ext.key(); !keys[end][k] {
							keys[end][k] = true
							table[end] = append(table[end], ext)
						}
					}
				}
			}
			if len(table[end]) > maxInterpretations {
				d.logger.Warn("interpretation table overflow, dropping candidates",
					slog.Int("endPos", end),
					slog.Int("cap", maxInterpretations))
				table[end] = table[end][:maxInterpretations]
			}
		}
	}

	out := table[len(s)]
	sort.Slice(out, func(i, j int) bool {
		return compareInterpretations(out[i], out[j]) < 0
	})
	return out
}

// expandCompanions generates, for every int/float variable token that
// carries a wildcard, the companion interpretation marking it
// encoded-in-segment. The condition is deliberately "the token carries a
// wildcard", not "the query does".
func expandCompanions(in interpretation) []interpretation {
	idxs := []int{}
	for i, t := range in {
		if t.kind == variableQueryToken && t.hasWildcard &&
			(t.typeID == schema.RuleIDInt || t.typeID == schema.RuleIDFloat) {
			idxs = append(idxs, i)
		}
	}
	out := []interpretation{in}
	for _, idx := range idxs {
		next := make([]interpretation, 0, len(out)*2)
		for _, cand := range out {
			next = append(next, cand)
			comp := append(interpretation(nil), cand...)
			comp[idx].isEncoded = true
			next = append(next, comp)
		}
		out = next
	}
	return out
}

// planInterpretation builds one subquery from an interpretation and
// appends it to q if its logtype pattern matches the dictionary and all
// exact dictionary lookups succeed.
func (d *DFAPlanner) planInterpretation(q *Query, in interpretation, ignoreCase, anyWildcard bool, seen map[string]bool) {
	var pattern strings.Builder
	var constraints []VarConstraint
	imprecise := false

	for _, t := range in {
		if t.kind == staticQueryToken {
			pattern.WriteString(t.text)
			continue
		}
		switch {
		case t.isEncoded && t.typeID == schema.RuleIDFloat:
			pattern.WriteByte(logtype.DelimDouble)
			constraints = append(constraints, VarConstraint{Kind: ConstraintWildcardMatch, EncodedInSegment: true})
			imprecise = true
		case t.isEncoded:
			pattern.WriteByte(logtype.DelimNonDouble)
			pattern.WriteByte(byte(t.typeID))
			constraints = append(constraints, VarConstraint{Kind: ConstraintWildcardMatch, EncodedInSegment: true})
			imprecise = true
		case !t.hasWildcard && t.typeID == schema.RuleIDInt:
			if v, ok := varenc.EncodeInteger(t.text); ok {
				pattern.WriteByte(logtype.DelimNonDouble)
				pattern.WriteByte(byte(t.typeID))
				constraints = append(constraints, VarConstraint{Kind: ConstraintEncoded, Encoded: v})
				continue
			}
			if !d.exactDictConstraint(&pattern, &constraints, t, ignoreCase) {
				return
			}
		case !t.hasWildcard && t.typeID == schema.RuleIDFloat:
			if v, ok := varenc.EncodeFloat(t.text); ok {
				pattern.WriteByte(logtype.DelimDouble)
				constraints = append(constraints, VarConstraint{Kind: ConstraintEncoded, Encoded: v})
				continue
			}
			if !d.exactDictConstraint(&pattern, &constraints, t, ignoreCase) {
				return
			}
		case !t.hasWildcard && t.typeID == schema.RuleIDHex:
			if v, ok := varenc.EncodeHex(t.text); ok {
				pattern.WriteByte(logtype.DelimNonDouble)
				pattern.WriteByte(byte(t.typeID))
				constraints = append(constraints, VarConstraint{Kind: ConstraintEncoded, Encoded: v})
				continue
			}
			if !d.exactDictConstraint(&pattern, &constraints, t, ignoreCase) {
				return
			}
		case !t.hasWildcard:
			if !d.exactDictConstraint(&pattern, &constraints, t, ignoreCase) {
				return
			}
		default:
			// Wildcarded variable read as a dictionary variable.
			entries := d.varDict.EntriesMatchingWildcard(t.text, ignoreCase)
			pattern.WriteByte(logtype.DelimNonDouble)
			pattern.WriteByte(byte(t.typeID))
			constraints = append(constraints, VarConstraint{
				Kind:            ConstraintWildcardMatch,
				PossibleEntries: entries,
				// A wildcarded hex variable may also be inline-encoded
				// behind the same slot form.
				EncodedInSegment: t.typeID == schema.RuleIDHex,
			})
			imprecise = true
		}
	}

	pat := pattern.String()
	dedupKey := pat + "|" + constraintsKey(constraints)
	if seen[dedupKey] {
		return
	}
	seen[dedupKey] = true

	ltEntries := d.ltDict.EntriesMatchingWildcard(pat, ignoreCase)
	if len(ltEntries) == 0 {
		return
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
}

// exactDictConstraint handles a wildcard-free variable token that could
// not be inline-encoded: it must exist verbatim in the variable
// dictionary or the interpretation dies.
func (d *DFAPlanner) exactDictConstraint(pattern *strings.Builder, constraints *[]VarConstraint, t queryToken, ignoreCase bool) bool {
	entry, found := d.varDict.EntryMatchingValue(t.text, ignoreCase)
	if !found {
		return false
	}
	pattern.WriteByte(logtype.DelimNonDouble)
	pattern.WriteByte(byte(t.typeID))
	*constraints = append(*constraints, VarConstraint{Kind: ConstraintDictEntry, Entry: entry})
	return true
}
