package query

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/dictionary"
)

// Strategy turns one free-text wildcard fragment into a Query.
type Strategy interface {
	Plan(search string, ignoreCase bool, tr TimeRange) (*Query, error)
}

// Planner layers the field-qualified search syntax over a wildcard
// strategy: bare fragments are planned verbatim, and field=value
// qualifiers become extra dictionary constraints merged into every
// subquery.
type Planner struct {
	strategy Strategy
	varDict  dictionary.VariableDictionaryReader
	logger   *slog.Logger
}

// PlannerParams configures a Planner.
type PlannerParams struct {
	Strategy Strategy
	VarDict  dictionary.VariableDictionaryReader
	Logger   *slog.Logger
}

func NewPlanner(p PlannerParams) *Planner {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{strategy: p.Strategy, varDict: p.VarDict, logger: logger}
}

// PlannedSearch is the planner's full result: one Query per free-text
// fragment (a matching message must satisfy every one), negated
// fragments for post-filtering, and the field-qualifier dictionary
// entries already merged into each subquery.
type PlannedSearch struct {
	Queries []*Query
	// NotFragments must NOT appear in a matching message; they are
	// checked by the caller after decode.
	NotFragments []string
	// Impossible means some required field value was never interned:
	// nothing can match.
	Impossible bool
}

// PlanSearch parses and plans a full search string.
func (p *Planner) PlanSearch(input string, ignoreCase bool, tr TimeRange) (*PlannedSearch, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: empty search string", clperr.BadParam)
	}
	parsed, err := ParseSearch(input)
	if err != nil {
		return nil, fmt.Errorf("error parsing search string: %w", err)
	}

	ret := &PlannedSearch{}
	for f := range parsed.NotFragments {
		ret.NotFragments = append(ret.NotFragments, f)
	}

	// Field qualifiers: in the heuristic encoding a key=value pair is one
	// interned variable, so "field=value" lookups go straight to the
	// variable dictionary.
	var fieldEntries [][]*dictionary.VariableEntry
	for field, values := range parsed.Fields {
		var group []*dictionary.VariableEntry
		for _, v := range values {
			needle := field + "=" + v
			if strings.ContainsAny(v, "*?") {
				group = append(group, p.varDict.EntriesMatchingWildcard(Sanitize(needle), ignoreCase)...)
			} else if e, ok := p.varDict.EntryMatchingValue(needle, ignoreCase); ok {
				group = append(group, e)
			}
		}
		if len(group) == 0 {
			ret.Impossible = true
			return ret, nil
		}
		fieldEntries = append(fieldEntries, group)
	}

	fragments := make([]string, 0, len(parsed.Fragments))
	for f := range parsed.Fragments {
		fragments = append(fragments, f)
	}
	if len(fragments) == 0 {
		// Field-only (or NOT-only) search: everything may match, subject
		// to the field constraints.
		fragments = append(fragments, "*")
	}

	for _, frag := range fragments {
		q, err := p.strategy.Plan(frag, ignoreCase, tr)
		if err != nil {
			return nil, fmt.Errorf("error planning fragment %q: %w", frag, err)
		}
		for i := range q.Subqueries {
			q.Subqueries[i].RequiredDictEntries = append(q.Subqueries[i].RequiredDictEntries, fieldEntries...)
		}
		ret.Queries = append(ret.Queries, q)
	}
	return ret, nil
}
