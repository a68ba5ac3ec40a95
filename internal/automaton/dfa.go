package automaton

import "sort"

// deadState is the sentinel "no transition" destination in a DFA's dense
// transition table: byte b has no valid continuation from this state.
const deadState StateID = 0

// dfaState is one DFA state: a dense 256-way byte transition table plus
// an ordered tag list (ascending rule id, highest priority first). A
// non-empty Tags list means the state accepts.
type dfaState struct {
	trans [256]StateID
	tags  []int
}

// DFA is the determinized form of an NFA, built by subset construction.
// State 0 is always the dead state (reserved, never accepting, all
// self-loops) so a zero-valued StateID unambiguously means "no
// transition" in the dense table.
type DFA struct {
	states []dfaState
	start  StateID
}

// Start returns the DFA's start state.
func (d *DFA) Start() StateID { return d.start }

// Step follows the transition for byte b from state s. The returned
// state is deadState if there is no such transition.
func (d *DFA) Step(s StateID, b byte) StateID {
	return d.states[s].trans[b]
}

// Tags returns the ascending-by-rule-id tag list for state s. An empty
// list means s does not accept.
func (d *DFA) Tags(s StateID) []int {
	return d.states[s].tags
}

// Accepts reports whether state s is an accepting state.
func (d *DFA) Accepts(s StateID) bool {
	return len(d.states[s].tags) > 0
}

// IsDead reports whether s is the unreachable dead state.
func (d *DFA) IsDead(s StateID) bool {
	return s == deadState
}

// Compile determinizes an NFA into a DFA via subset construction.
func Compile(n *NFA) *DFA {
	d := &DFA{}
	d.states = append(d.states, dfaState{}) // deadState, all zero = self-loop to itself
	for b := 0; b < 256; b++ {
		d.states[deadState].trans[b] = deadState
	}

	startSet := epsilonClosure(n, []StateID{n.start})
	setKey := func(set []StateID) string {
		ids := append([]StateID(nil), set...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		b := make([]byte, 0, len(ids)*4)
		for _, id := range ids {
			b = append(b, byte(id), byte(id>>8), byte(id>>16), byte(id>>24))
		}
		return string(b)
	}

	seen := map[string]StateID{}
	type pending struct {
		set []StateID
		id  StateID
	}

	d.states = append(d.states, dfaState{})
	startID := StateID(len(d.states) - 1)
	d.start = startID
	seen[setKey(startSet)] = startID

	queue := []pending{{set: startSet, id: startID}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d.states[cur.id].tags = tagsOf(n, cur.set)

		// Group transitions by distinct byte to build the 256-way table
		// without enumerating each of the 256 next-state sets
		// independently more than necessary.
		var byByte [256][]StateID
		for _, s := range cur.set {
			for _, tr := range n.states[s].trans {
				for b := int(tr.Lo); b <= int(tr.Hi); b++ {
					byByte[b] = append(byByte[b], tr.To)
				}
			}
		}
		for b := 0; b < 256; b++ {
			if len(byByte[b]) == 0 {
				d.states[cur.id].trans[b] = deadState
				continue
			}
			closure := epsilonClosure(n, byByte[b])
			key := setKey(closure)
			id, ok := seen[key]
			if !ok {
				d.states = append(d.states, dfaState{})
				id = StateID(len(d.states) - 1)
				seen[key] = id
				queue = append(queue, pending{set: closure, id: id})
			}
			d.states[cur.id].trans[b] = id
		}
	}
	return d
}

func epsilonClosure(n *NFA, start []StateID) []StateID {
	visited := map[StateID]bool{}
	stack := append([]StateID(nil), start...)
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[s] {
			continue
		}
		visited[s] = true
		for _, e := range n.states[s].epsilon {
			if !visited[e] {
				stack = append(stack, e)
			}
		}
	}
	out := make([]StateID, 0, len(visited))
	for s := range visited {
		out = append(out, s)
	}
	return out
}

// tagsOf collects the accepting rule ids among a set of NFA states,
// ascending by rule id (lowest id = highest priority, mirroring schema
// declaration order).
func tagsOf(n *NFA, set []StateID) []int {
	var tags []int
	for _, s := range set {
		if n.states[s].ruleID != nil {
			tags = append(tags, *n.states[s].ruleID)
		}
	}
	sort.Ints(tags)
	return tags
}
