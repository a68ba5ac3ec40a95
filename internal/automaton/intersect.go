package automaton

import "sort"

// Intersect returns the set of rule ids from a whose language has a
// non-empty intersection with b's language: which of a's rules could
// match some string b also matches. It is computed via
// reachability over the product automaton: a product state (qa, qb) is
// interesting if some string drives both DFAs there, and a's rule at qa
// is reportable if some reachable product state pairs qa (accepting in
// a) with any qb that is accepting in b.
func Intersect(a, b *DFA) []int {
	type pair struct{ qa, qb StateID }
	start := pair{a.start, b.start}
	visited := map[pair]bool{start: true}
	queue := []pair{start}

	found := map[int]bool{}
	recordIfAccepting := func(p pair) {
		if a.Accepts(p.qa) && b.Accepts(p.qb) {
			for _, tag := range a.Tags(p.qa) {
				found[tag] = true
			}
		}
	}
	recordIfAccepting(start)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for byteVal := 0; byteVal < 256; byteVal++ {
			na := a.Step(cur.qa, byte(byteVal))
			nb := b.Step(cur.qb, byte(byteVal))
			if a.IsDead(na) || b.IsDead(nb) {
				continue
			}
			np := pair{na, nb}
			if visited[np] {
				continue
			}
			visited[np] = true
			recordIfAccepting(np)
			queue = append(queue, np)
		}
	}

	tags := make([]int, 0, len(found))
	for tag := range found {
		tags = append(tags, tag)
	}
	sort.Ints(tags)
	return tags
}
