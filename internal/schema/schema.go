// Package schema holds the parsed schema tree consumed by the lexer: a
// delimiter set plus an ordered list of variable rules, each a named
// regex. The grammar driver that would produce this tree from a schema
// file is out of scope; schemas are loaded from a JSON document instead,
// the same way the rest of this module loads typed configuration.
package schema

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/clpgo/clpcore/internal/automaton"
)

// Reserved rule ids. Rule id doubles as the one-byte schema tag written
// after a NonDouble variable delimiter, and as the tie-break priority at
// a shared accepting DFA state (lower id wins), so the ordering below is
// load-bearing: timestamps outrank the numeric rules, which outrank any
// user-declared variable.
const (
	RuleIDFirstTimestamp = iota
	RuleIDNewlineTimestamp
	RuleIDNewline
	RuleIDInt
	RuleIDFloat
	RuleIDHex
	// RuleIDFirstUser is the id of the first user-declared variable rule.
	RuleIDFirstUser
)

// Rule is one user-declared variable rule from the schema tree.
type Rule struct {
	Name    string
	LineNum int
	Pattern string
}

// Schema is the parsed schema tree: the delimiter set plus the ordered
// variable rules the lexer and query planner consume.
type Schema struct {
	Delimiters       []byte
	TimestampPattern string
	// TimeLayout is the Go time layout (or one of the special layouts
	// UNIX, UNIX_MILLIS, UNIX_DECIMAL_NANOS) used to parse a matched
	// timestamp. Empty means best-effort sniffing.
	TimeLayout string
	Vars       []Rule
}

const (
	builtinIntPattern   = `-?[0-9]+`
	builtinFloatPattern = `-?[0-9]+\.[0-9]+`
	builtinHexPattern   = `(0x)?([0-9a-f]+|[0-9A-F]+)`
)

// defaultTimestampPattern matches "2006-01-02 15:04:05" shaped
// timestamps. Written out digit by digit since the schema regex subset
// has no counted repetition.
const defaultTimestampPattern = `[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9] [0-9][0-9]:[0-9][0-9]:[0-9][0-9]`

// Default returns a schema with the standard delimiter set, the standard
// timestamp rule, and no user variables.
func Default() *Schema {
	return &Schema{
		Delimiters:       []byte{' ', '\t', '\r', '\n', ':', ',', '!', ';', '%'},
		TimestampPattern: defaultTimestampPattern,
		TimeLayout:       "2006-01-02 15:04:05",
	}
}

type jsonSchema struct {
	Delimiters       string     `json:"delimiters"`
	TimestampPattern string     `json:"timestampPattern"`
	TimeLayout       string     `json:"timeLayout"`
	Variables        []jsonRule `json:"variables"`
}

type jsonRule struct {
	Name  string `json:"name"`
	Regex string `json:"regex"`
}

// FromJSON decodes a schema document. Missing fields fall back to the
// Default schema's values; variable order in the document is declaration
// order and therefore priority order.
func FromJSON(r io.Reader) (*Schema, error) {
	var doc jsonSchema
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("error decoding schema json: %w", err)
	}
	s := Default()
	if doc.Delimiters != "" {
		s.Delimiters = []byte(doc.Delimiters)
	}
	if doc.TimestampPattern != "" {
		s.TimestampPattern = doc.TimestampPattern
	}
	if doc.TimeLayout != "" {
		s.TimeLayout = doc.TimeLayout
	}
	for i, v := range doc.Variables {
		if v.Name == "" || v.Regex == "" {
			return nil, fmt.Errorf("schema variable %d is missing a name or regex", i)
		}
		s.Vars = append(s.Vars, Rule{Name: v.Name, LineNum: i + 1, Pattern: v.Regex})
	}
	// Validate every pattern compiles now, so a bad schema fails at load
	// time rather than on the first scanned message.
	if _, err := automaton.Build(s.LexerRules()); err != nil {
		return nil, fmt.Errorf("error compiling schema rules: %w", err)
	}
	return s, nil
}

// LexerRules assembles the full rule list handed to the automaton
// builder: the builtin timestamp/newline/numeric rules at their reserved
// ids, then the user variables from RuleIDFirstUser.
func (s *Schema) LexerRules() []automaton.Rule {
	rules := []automaton.Rule{
		{Name: "firstTimestamp", Pattern: s.TimestampPattern, RuleID: RuleIDFirstTimestamp},
		{Name: "newlineTimestamp", Pattern: `\n` + s.TimestampPattern, RuleID: RuleIDNewlineTimestamp},
		{Name: "newline", Pattern: `\n`, RuleID: RuleIDNewline},
		{Name: "int", Pattern: builtinIntPattern, RuleID: RuleIDInt},
		{Name: "float", Pattern: builtinFloatPattern, RuleID: RuleIDFloat},
		{Name: "hex", Pattern: builtinHexPattern, RuleID: RuleIDHex},
	}
	for i, v := range s.Vars {
		rules = append(rules, automaton.Rule{Name: v.Name, Pattern: v.Pattern, RuleID: RuleIDFirstUser + i})
	}
	return rules
}

// VarRules returns only the variable-shaped rules (everything except the
// timestamp and newline structure rules), which is what the query
// planner's DFA-intersection strategy matches query fragments against.
func (s *Schema) VarRules() []automaton.Rule {
	all := s.LexerRules()
	vars := make([]automaton.Rule, 0, len(all)-3)
	for _, r := range all {
		switch r.RuleID {
		case RuleIDFirstTimestamp, RuleIDNewlineTimestamp, RuleIDNewline:
			continue
		}
		vars = append(vars, r)
	}
	return vars
}

// TagName resolves a schema tag back to its rule name, for diagnostics;
// ok is false for a tag that no lexer rule uses.
func (s *Schema) TagName(tag byte) (string, bool) {
	for _, r := range s.LexerRules() {
		if r.RuleID == int(tag) {
			return r.Name, true
		}
	}
	return "", false
}

// IsDelimiter reports whether c is in the schema's delimiter set.
func (s *Schema) IsDelimiter(c byte) bool {
	for _, d := range s.Delimiters {
		if d == c {
			return true
		}
	}
	return false
}
