// Package automaton implements NFA/DFA construction from a schema's
// regex rules, and DFA-DFA intersection for the query planner's
// DFA-intersection strategy.
//
// States are arena-allocated and referenced by StateID rather than by
// pointer, since regex automata naturally form cyclic graphs.
package automaton

// StateID indexes into an NFA's or DFA's state arena.
type StateID uint32

// byteRange is an inclusive [Lo, Hi] byte range transition label. Ranges
// above 0xFF (true Unicode code points) are out of scope for this core:
// schemas are matched against byte streams, and multi-byte UTF-8
// sequences are handled as sequences of single-byte ranges by the regex
// compiler, not as a separate interval tree, keeping the automaton
// package to dense 256-way byte transition tables.
type byteRange struct {
	Lo, Hi byte
	To     StateID
}

// byteSpan is an inclusive [lo, hi] byte range with no destination state,
// used while assembling character-class members before they are turned
// into literalRange fragments.
type byteSpan struct {
	lo, hi byte
}

// nfaState is one state in an NFA arena. A state may have any number of
// byte-range transitions and epsilon transitions; ruleID is non-nil when
// this state accepts, tagging which schema rule it accepts for.
type nfaState struct {
	trans   []byteRange
	epsilon []StateID
	ruleID  *int
}

// NFA is an arena of states built by Thompson construction from one or
// more regex ASTs, each tagged with a rule id (schema declaration order,
// lower id = higher priority).
type NFA struct {
	states []nfaState
	start  StateID
}

func newNFA() *NFA {
	return &NFA{states: make([]nfaState, 0, 64)}
}

func (n *NFA) newState() StateID {
	n.states = append(n.states, nfaState{})
	return StateID(len(n.states) - 1)
}

func (n *NFA) addByteRange(from StateID, lo, hi byte, to StateID) {
	n.states[from].trans = append(n.states[from].trans, byteRange{Lo: lo, Hi: hi, To: to})
}

func (n *NFA) addEpsilon(from, to StateID) {
	n.states[from].epsilon = append(n.states[from].epsilon, to)
}

func (n *NFA) setAccept(s StateID, ruleID int) {
	id := ruleID
	n.states[s].ruleID = &id
}

// Start returns the NFA's start state.
func (n *NFA) Start() StateID { return n.start }

// Build compiles a set of named regex rules into a single NFA whose start
// state epsilon-branches into each rule's own fragment. Rule order in
// `rules` is schema declaration order; RuleID in each Rule should mirror
// that (lower RuleID = higher priority at a shared accepting state).
func Build(rules []Rule) (*NFA, error) {
	n := newNFA()
	n.start = n.newState()
	for _, r := range rules {
		frag, err := compileRegex(n, r.Pattern)
		if err != nil {
			return nil, &CompileError{Rule: r.Name, Pattern: r.Pattern, Err: err}
		}
		n.addEpsilon(n.start, frag.start)
		n.setAccept(frag.accept, r.RuleID)
	}
	return n, nil
}

// BuildReversed compiles the same rule set but with every fragment
// reversed (for the lexer's reverse-scan mode used to classify tokens
// with a prefix wildcard).
func BuildReversed(rules []Rule) (*NFA, error) {
	n := newNFA()
	n.start = n.newState()
	for _, r := range rules {
		frag, err := compileRegex(n, r.Pattern)
		if err != nil {
			return nil, &CompileError{Rule: r.Name, Pattern: r.Pattern, Err: err}
		}
		rfrag := reverseFragment(n, frag)
		n.addEpsilon(n.start, rfrag.start)
		n.setAccept(rfrag.accept, r.RuleID)
	}
	return n, nil
}

// Rule is one schema variable rule: a name (for diagnostics), a regex
// pattern, and the rule id used for acceptance-tag priority ordering.
type Rule struct {
	Name    string
	Pattern string
	RuleID  int
}

// CompileError reports a regex that failed to compile into the NFA.
type CompileError struct {
	Rule    string
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return "automaton: failed to compile rule " + e.Rule + " (" + e.Pattern + "): " + e.Err.Error()
}

func (e *CompileError) Unwrap() error { return e.Err }
