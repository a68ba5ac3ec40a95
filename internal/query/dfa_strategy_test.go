package query

import (
	"testing"

	"github.com/clpgo/clpcore/internal/dictionary"
	"github.com/clpgo/clpcore/internal/logtype"
	"github.com/clpgo/clpcore/internal/schema"
	"github.com/clpgo/clpcore/internal/varenc"
)

// schemaArchive encodes messages the way the schema ingest path would.
type schemaArchive struct {
	varDict *dictionary.MemoryVariableDictionary
	ltDict  *dictionary.MemoryLogtypeDictionary
	ltIDs   []uint64
	vars    [][]int64
}

type schemaMsg struct {
	raw    string
	tokens []logtype.SchemaToken
}

func encodeSchemaArchive(t *testing.T, msgs []schemaMsg) *schemaArchive {
	t.Helper()
	arch := &schemaArchive{
		varDict: dictionary.NewMemoryVariableDictionary(),
		ltDict:  dictionary.NewMemoryLogtypeDictionary(logtype.ModeSchema),
	}
	a := logtype.NewAssembler(logtype.Parameters{Mode: logtype.ModeSchema, Dict: arch.varDict})
	for _, m := range msgs {
		entry, vars, err := a.EncodeSchemaMessage(m.raw, m.tokens)
		if err != nil {
			t.Fatalf("EncodeSchemaMessage(%q): %v", m.raw, err)
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

func newDFAPlanner(t *testing.T, arch *schemaArchive) *DFAPlanner {
	t.Helper()
	p, err := NewDFAPlanner(DFAPlannerParams{
		Schema:  schema.Default(),
		VarDict: arch.varDict,
		LtDict:  arch.ltDict,
	})
	if err != nil {
		t.Fatalf("NewDFAPlanner: %v", err)
	}
	return p
}

func TestDFAPlanSupersedesAll(t *testing.T) {
	arch := encodeSchemaArchive(t, []schemaMsg{{raw: "plain\n"}})
	p := newDFAPlanner(t, arch)
	q, err := p.Plan("*", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !q.MatchesAll || len(q.Subqueries) != 0 {
		t.Fatalf("q = %+v, want MatchesAll with no subqueries", q)
	}
}

func TestDFAPlanConcreteInt(t *testing.T) {
	arch := encodeSchemaArchive(t, []schemaMsg{{
		raw:    "took 42 ms\n",
		tokens: []logtype.SchemaToken{{Begin: 5, End: 7, Tag: schema.RuleIDInt}},
	}})
	p := newDFAPlanner(t, arch)
	q, err := p.Plan("took 42 ms", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("no subquery covers the message; got %d subqueries", len(q.Subqueries))
	}
	foundEncoded := false
	for _, sq := range q.Subqueries {
		for _, c := range sq.VarConstraints {
			if c.Kind == ConstraintEncoded && c.Encoded == 42 {
				foundEncoded = true
			}
		}
	}
	if !foundEncoded {
		t.Fatalf("no subquery carries the exact encoded-42 constraint")
	}
}

func TestDFAPlanWildcardIntCompanion(t *testing.T) {
	arch := encodeSchemaArchive(t, []schemaMsg{{
		raw:    "took 421 ms\n",
		tokens: []logtype.SchemaToken{{Begin: 5, End: 8, Tag: schema.RuleIDInt}},
	}})
	p := newDFAPlanner(t, arch)
	q, err := p.Plan("took 42*", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	// The companion interpretation marks the wildcarded int as
	// encoded-in-segment; its constraint must accept the inline 421.
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("companion interpretation missing: no subquery covers inline-encoded 421")
	}
	for _, sq := range q.Subqueries {
		if !sq.WildcardMatchRequired {
			t.Errorf("wildcard subqueries must require the post-match")
		}
	}
}

func TestDFAPlanFloat(t *testing.T) {
	arch := encodeSchemaArchive(t, []schemaMsg{{
		raw:    "ratio 0.75 done\n",
		tokens: []logtype.SchemaToken{{Begin: 6, End: 10, Tag: schema.RuleIDFloat}},
	}})
	p := newDFAPlanner(t, arch)
	q, err := p.Plan("ratio 0.75 done", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("no subquery covers the float message")
	}
	want, ok := varenc.EncodeFloat("0.75")
	if !ok {
		t.Fatalf("EncodeFloat(0.75) refused")
	}
	found := false
	for _, sq := range q.Subqueries {
		for _, c := range sq.VarConstraints {
			if c.Kind == ConstraintEncoded && c.Encoded == want {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("no subquery carries the exact encoded-float constraint")
	}
}

func TestDFAPlanHex(t *testing.T) {
	arch := encodeSchemaArchive(t, []schemaMsg{{
		raw:    "handle 0xbeef end\n",
		tokens: []logtype.SchemaToken{{Begin: 7, End: 13, Tag: schema.RuleIDHex}},
	}})
	p := newDFAPlanner(t, arch)
	q, err := p.Plan("handle 0xbeef end", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("no subquery covers the hex message")
	}
}

func TestDFAPlanPrefixWildcard(t *testing.T) {
	arch := encodeSchemaArchive(t, []schemaMsg{{
		raw:    "took 42 ms\n",
		tokens: []logtype.SchemaToken{{Begin: 5, End: 7, Tag: schema.RuleIDInt}},
	}})
	p := newDFAPlanner(t, arch)
	// "*42 ms" forces the reverse-scan classification of the "*42"
	// fragment.
	q, err := p.Plan("*42 ms", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("prefix-wildcard query does not cover the message")
	}
}

func TestDFAPlanDictVariableViaHexRule(t *testing.T) {
	// A non-encodable variable (here a hex-rule token too long to inline)
	// lands in the dictionary; an exact query must resolve it there.
	long := "abcdef1234567890" // 16 hex digits, over the inline limit
	arch := encodeSchemaArchive(t, []schemaMsg{{
		raw:    "blob " + long + " end\n",
		tokens: []logtype.SchemaToken{{Begin: 5, End: 5 + len(long), Tag: schema.RuleIDHex}},
	}})
	p := newDFAPlanner(t, arch)
	q, err := p.Plan("blob "+long+" end", false, TimeRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !subqueryCovers(q, arch.ltIDs[0], arch.vars[0]) {
		t.Fatalf("no subquery covers the dictionary-variable message")
	}
	found := false
	for _, sq := range q.Subqueries {
		for _, c := range sq.VarConstraints {
			if c.Kind == ConstraintDictEntry && c.Entry.Value == long {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("no subquery carries the exact dictionary-entry constraint")
	}
}

func TestCompareInterpretationsOrdering(t *testing.T) {
	shorter := interpretation{{kind: staticQueryToken, text: "ab"}}
	longer := interpretation{
		{kind: staticQueryToken, text: "a"},
		{kind: variableQueryToken, typeID: schema.RuleIDInt, text: "b"},
	}
	if compareInterpretations(shorter, longer) >= 0 {
		t.Errorf("shorter interpretation must order before longer")
	}
	static := interpretation{{kind: staticQueryToken, text: "x"}}
	variable := interpretation{{kind: variableQueryToken, typeID: schema.RuleIDInt, text: "x"}}
	if compareInterpretations(static, variable) >= 0 {
		t.Errorf("static form must order before variable form at equal length")
	}
	if compareInterpretations(static, static) != 0 {
		t.Errorf("equal interpretations must compare equal")
	}
}

func TestExpandCompanions(t *testing.T) {
	in := interpretation{
		{kind: staticQueryToken, text: "a "},
		{kind: variableQueryToken, typeID: schema.RuleIDInt, text: "4*", hasWildcard: true},
	}
	out := expandCompanions(in)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (base + companion)", len(out))
	}
	if out[0][1].isEncoded || !out[1][1].isEncoded {
		t.Fatalf("companion expansion wrong: %+v", out)
	}

	// No wildcard: no companion.
	in[1].hasWildcard = false
	if got := expandCompanions(in); len(got) != 1 {
		t.Fatalf("non-wildcard int should not get a companion, got %d", len(got))
	}
}
