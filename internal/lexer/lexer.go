package lexer

import (
	"fmt"

	"github.com/clpgo/clpcore/internal/automaton"
	"github.com/clpgo/clpcore/internal/charbuf"
	"github.com/clpgo/clpcore/internal/clperr"
)

// Lexer drives a DFA against an InputBuffer. When a delimiter set is
// configured, ScanDelimited additionally enforces that a matched token
// begins at a delimiter boundary, which is how the heuristic and schema
// paths agree on variable placement.
type Lexer struct {
	dfa        *automaton.DFA
	delimiters map[byte]bool
}

// New builds a Lexer over a compiled DFA. delimiters may be nil.
func New(dfa *automaton.DFA, delimiters []byte) *Lexer {
	l := &Lexer{dfa: dfa}
	if len(delimiters) > 0 {
		l.delimiters = make(map[byte]bool, len(delimiters))
		for _, d := range delimiters {
			l.delimiters[d] = true
		}
	}
	return l
}

func (l *Lexer) isDelimiter(c byte, ok bool) bool {
	if !ok {
		return true // EOF counts as a flanking boundary
	}
	if l.delimiters == nil {
		return false
	}
	return l.delimiters[c]
}

// Scan runs the DFA from buf.Pos(), growing/refilling buf via r as
// needed, and returns the longest accepting match (ties broken by
// lowest rule id, which is how DFA state tags are ordered). If the DFA
// dies with no accept but bytes were consumed, it returns a
// KindUncaughtString token for those bytes and leaves buf positioned to
// resume from the first unconsumed byte.
func (l *Lexer) Scan(buf *charbuf.InputBuffer, r charbuf.Reader) (Token, error) {
	start := buf.Pos()
	state := l.dfa.Start()
	pos := start
	lastAcceptPos := -1
	var lastAcceptTags []int

	for {
		if buf.AtFailPos(pos) {
			if buf.FinishedReadingInput() {
				break
			}
			if buf.SafeToRead() {
				if err := buf.Fill(r); err != nil {
					return Token{}, err
				}
			} else if err := buf.Grow(); err != nil {
				if lastAcceptPos == -1 {
					return Token{}, fmt.Errorf("%w: no rule accepts and the input buffer is at its maximum size: %v", clperr.LexerFailure, err)
				}
				return Token{}, err
			}
			continue
		}
		c, ok := buf.ByteAt(pos)
		if !ok {
			break
		}
		next := l.dfa.Step(state, c)
		if l.dfa.IsDead(next) {
			break
		}
		state = next
		pos++
		if l.dfa.Accepts(state) {
			lastAcceptPos = pos
			lastAcceptTags = l.dfa.Tags(state)
		}
	}

	if lastAcceptPos == -1 {
		if pos == start {
			if buf.FinishedReadingInput() && buf.AtFailPos(pos) {
				return Token{Kind: KindEOF, Start: pos, End: pos, Generation: buf.Generation()}, nil
			}
			// The very first byte killed the DFA with no accept: consume
			// exactly that byte as uncaught so the scan always makes
			// progress.
			pos = start + 1
		}
		buf.SetPos(pos)
		return Token{Kind: KindUncaughtString, Start: start, End: pos, Generation: buf.Generation()}, nil
	}

	buf.SetPos(lastAcceptPos)
	return Token{
		Kind:       KindToken,
		Start:      start,
		End:        lastAcceptPos,
		Generation: buf.Generation(),
		TypeIDs:    lastAcceptTags,
	}, nil
}

// ScanDelimited is Scan plus the delimiter-flanking contract: a matched
// token that is not preceded by a delimiter (or buffer start) is
// downgraded to an uncaught string, since a rule match starting mid-word
// is not a variable. When Lexer has no delimiter set configured, it
// behaves exactly like Scan.
func (l *Lexer) ScanDelimited(buf *charbuf.InputBuffer, r charbuf.Reader) (Token, error) {
	tok, err := l.Scan(buf, r)
	if err != nil || l.delimiters == nil || tok.Kind != KindToken {
		return tok, err
	}
	if first, ok := buf.ByteAt(tok.Start); ok && l.delimiters[first] {
		// A token that begins with a delimiter carries its own flanking:
		// the delimiter is retained as the first character of the
		// following token, which is how the heuristic and schema paths
		// agree on variable placement.
		return tok, nil
	}
	if tok.Start > 0 {
		before, ok := buf.ByteAt(tok.Start - 1)
		if ok && !l.delimiters[before] {
			tok.Kind = KindUncaughtString
			tok.TypeIDs = nil
		}
	}
	return tok, nil
}

// ReverseScan runs a Lexer built from a reversed-rule DFA (automaton.BuildReversed)
// against s read back-to-front, used to classify a token carrying a
// leading wildcard. It returns the tag list
// of the longest suffix-from-the-right match, since scanning s in
// reverse means the "start" of the reverse scan corresponds to the end
// of s.
func (l *Lexer) ReverseScan(s string) []int {
	state := l.dfa.Start()
	lastTags := []int(nil)
	for i := len(s) - 1; i >= 0; i-- {
		next := l.dfa.Step(state, s[i])
		if l.dfa.IsDead(next) {
			break
		}
		state = next
		if l.dfa.Accepts(state) {
			lastTags = l.dfa.Tags(state)
		}
	}
	return lastTags
}
