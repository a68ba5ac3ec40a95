package query

import (
	"errors"
	"testing"

	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/dictionary"
	"github.com/clpgo/clpcore/internal/logtype"
)

// heuristicArchive encodes messages the way the heuristic ingest path
// would, returning the dictionaries plus each message's logtype id and
// encoded variables.
type heuristicArchive struct {
	varDict *dictionary.MemoryVariableDictionary
	ltDict  *dictionary.MemoryLogtypeDictionary
	ltIDs   []uint64
	vars    [][]int64
}

func encodeHeuristicArchive(t *testing.T, msgs []string) *heuristicArchive {
	t.Helper()
	arch := &heuristicArchive{
		varDict: dictionary.NewMemoryVariableDictionary(),
		ltDict:  dictionary.NewMemoryLogtypeDictionary(logtype.ModeHeuristic),
	}
	a := logtype.NewAssembler(logtype.Parameters{Mode: logtype.ModeHeuristic, Dict: arch.varDict})
	for _, msg := range msgs {
		entry, vars, err := a.EncodeMessage(msg)
		if err != nil {
			t.Fatalf("EncodeMessage(%q): %v", msg, err)
		}
		id, _, err := arch.ltDict.AddEntry(entry)
		if err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
		arch.ltIDs = append(arch.ltIDs, id)
		arch.vars = append(arch.vars, vars)
	}
	return arch
}

func newHeuristicPlanner(arch *heuristicArchive) *HeuristicPlanner {
	return NewHeuristicPlanner(HeuristicPlannerParams{
		VarDict: arch.varDict,
		LtDict:  arch.ltDict,
	})
}

// subqueryCovers reports whether some subquery may-matches the encoded
// message: the logtype is possible and, when the constraint list aligns
// positionally with the message's variables, every variable satisfies
// its constraint.
func subqueryCovers(q *Query, ltID uint64, vars []int64) bool {
	for _, sq := range q.Subqueries {
		found := false
		for _, e := range sq.PossibleLogtypes {
			if e.ID == ltID {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		if len(sq.VarConstraints) == len(vars) {
			ok := true
			for i, v := range vars {
				if !sq.VarConstraints[i].Satisfies(v) {
					ok = false
					break
				}
			}
			if ok {
				return true
			}
			continue
		}
		// Fewer constraints than variables: wildcards span the rest;
		// covered as long as the logtype matched.
		if len(sq.VarConstraints) < len(vars) {
			return true
		}
	}
	return false
}

func TestHeuristicPlanSupersedesAll(t *testing.T) {
	arch := encodeHeuristicArchive(t, []string{"a 42 b\n"})
	p := newHeuristicPlanner(arch)
	for _, search := range []string{"*", "***", "?"} {
		q, err := p.Plan(search, false, TimeRange{})
		if err != nil {
			t.Fatalf("Plan(%q): %v", search, err)
		}
		if !q.MatchesAll {
			t.Errorf("Plan(%q).MatchesAll = false", search)
		}
		if len(q.Subqueries) != 0 {
			t.Errorf("Plan(%q) produced %d subqueries, want 0", search, len(q.Subqueries))
		}
	}
}

func TestHeuristicPlanRejectsEmptySearch(t *testing.T) {
	arch := encodeHeuristicArchive(t, []string{"a 42 b\n"})
	p := newHeuristicPlanner(arch)
	if _, err := p.Plan("", false, TimeRange{}); !errors.Is(err, clperr.BadParam) {
		t.Fatalf("err = %v, want BadParam", err)
	}
}

func TestHeuristicPlanConcreteInt(t *testing.T) {
	arch := encodeHeuristicArchive(t, []string{"a 42 b\n", "a 7 b\n"})
	p := newHeuristicPlanner(arch)
	q, err := p.Plan("a 42 b", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if q.MatchesAll {
		t.Fatalf("MatchesAll unexpectedly true")
	}
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("no subquery covers the encoded message; subqueries=%d", len(q.Subqueries))
	}

	// The exact-integer constraint must reject a message with a
	// different variable value in the same logtype.
	for _, sq := range q.Subqueries {
		if len(sq.VarConstraints) == 1 && sq.VarConstraints[0].Kind == ConstraintEncoded {
			if sq.VarConstraints[0].Satisfies(7) {
				t.Errorf("encoded-42 constraint should not accept 7")
			}
		}
	}
}

func TestHeuristicPlanWildcardVar(t *testing.T) {
	arch := encodeHeuristicArchive(t, []string{"width 42 height 7\n"})
	p := newHeuristicPlanner(arch)
	q, err := p.Plan("width 4*", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("no subquery covers the message")
	}
	for _, sq := range q.Subqueries {
		if !sq.WildcardMatchRequired {
			t.Errorf("wildcard query subqueries must require the post-match")
		}
	}
}

func TestHeuristicPlanDictVariable(t *testing.T) {
	arch := encodeHeuristicArchive(t, []string{"user=alice ok\n"})
	p := newHeuristicPlanner(arch)
	q, err := p.Plan("user=alice", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("no subquery covers the message")
	}
	foundEntry := false
	for _, sq := range q.Subqueries {
		for _, c := range sq.VarConstraints {
			for _, e := range c.PossibleEntries {
				if e.Value == "user=alice" {
					foundEntry = true
				}
			}
		}
	}
	if !foundEntry {
		t.Fatalf("no constraint references the user=alice dictionary entry")
	}
}

func TestHeuristicPlanConcreteDictMiss(t *testing.T) {
	arch := encodeHeuristicArchive(t, []string{"a 42 b\n"})
	p := newHeuristicPlanner(arch)
	// "x=zed" is a concrete (wildcard-free) dictionary variable that was
	// never interned: every assignment containing it dies.
	q, err := p.Plan("k x=zed m", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(q.Subqueries) != 0 {
		t.Fatalf("got %d subqueries, want 0", len(q.Subqueries))
	}
}

func TestHeuristicPlanNoLogtypeMatch(t *testing.T) {
	arch := encodeHeuristicArchive(t, []string{"a 42 b\n"})
	p := newHeuristicPlanner(arch)
	q, err := p.Plan("zzz qqq", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(q.Subqueries) != 0 {
		t.Fatalf("got %d subqueries, want 0", len(q.Subqueries))
	}
}

func TestHeuristicPlanIgnoreCase(t *testing.T) {
	arch := encodeHeuristicArchive(t, []string{"user=Alice ok\n"})
	p := newHeuristicPlanner(arch)
	q, err := p.Plan("user=alice", true, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("case-insensitive plan should cover the message")
	}
}
