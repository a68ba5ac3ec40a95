// Package heuristic implements the schema-free tokenizer used when no
// schema is configured. It splits a message into delimiter-bounded
// tokens and classifies each as a literal or a variable from its byte
// classes alone.
package heuristic

// ByteClass is the per-byte classification the tokenizer's state machine
// switches on.
type ByteClass int

const (
	ClassOther ByteClass = iota
	ClassDelimiter
	ClassDigit
	ClassAlpha
	ClassWildcard
	ClassEscape
)

// DefaultDelimiters is the standard token-separator set.
var DefaultDelimiters = []byte{' ', '\t', '\r', '\n', ':', ',', '!', ';', '%'}

// Token is a [Begin, End) span of the original message plus the
// classification decided by the second pass.
type Token struct {
	Begin, End       int
	IsVar            bool
	ContainsWildcard bool
}

// Tokenizer holds the configured delimiter set. The zero value is not
// usable; construct with New.
type Tokenizer struct {
	delimiters map[byte]bool
}

// New builds a Tokenizer over delimiters. A nil or empty slice falls back
// to DefaultDelimiters.
func New(delimiters []byte) *Tokenizer {
	if len(delimiters) == 0 {
		delimiters = DefaultDelimiters
	}
	t := &Tokenizer{delimiters: make(map[byte]bool, len(delimiters))}
	for _, d := range delimiters {
		t.delimiters[d] = true
	}
	return t
}

func classify(c byte, delimiters map[byte]bool) ByteClass {
	switch {
	case delimiters[c]:
		return ClassDelimiter
	case c >= '0' && c <= '9':
		return ClassDigit
	case c == '*' || c == '?':
		return ClassWildcard
	case c == '\\':
		return ClassEscape
	case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		return ClassAlpha
	default:
		return ClassOther
	}
}

// Tokenize runs two-pass token discovery over msg. The first
// pass splits msg into delimiter-bounded spans (consecutive delimiter
// bytes are skipped rather than returned as tokens: they carry no
// logtype-distinguishing content of their own). The second pass decides,
// for each span, whether it is a variable per the three rules below.
func (t *Tokenizer) Tokenize(msg string) []Token {
	spans := t.splitSpans(msg)
	tokens := make([]Token, 0, len(spans))
	for _, sp := range spans {
		tokens = append(tokens, t.classifySpan(msg, sp.begin, sp.end))
	}
	return tokens
}

type span struct{ begin, end int }

// splitSpans is the first pass: (1) advance the start
// cursor past delimiters until a non-delimiter byte is seen, (2) advance
// the end cursor until the next unescaped delimiter. A '\' immediately
// before a delimiter retains that delimiter as part of the token instead
// of ending the scan there.
func (t *Tokenizer) splitSpans(msg string) []span {
	var spans []span
	n := len(msg)
	i := 0
	for i < n {
		for i < n && classify(msg[i], t.delimiters) == ClassDelimiter {
			i++
		}
		if i >= n {
			break
		}
		begin := i
		for i < n {
			if msg[i] == '\\' && i+1 < n {
				i += 2
				continue
			}
			if classify(msg[i], t.delimiters) == ClassDelimiter {
				break
			}
			i++
		}
		spans = append(spans, span{begin, i})
	}
	return spans
}

// classifySpan is the second pass: given the byte sequence of one span,
// decide IsVar and ContainsWildcard. A span is a variable iff:
//
//   - the token contains a decimal digit, or
//   - the token could be a multi-digit hex value (every byte is a hex
//     digit and at least two bytes are present), or
//   - some alphabetic byte in the token is immediately preceded by '='
//     (the '=' need not be the first byte of the token: '=' is not a
//     delimiter, so an assignment like key=value is one span), with no
//     wildcard appearing anywhere before that alphabetic byte.
func (t *Tokenizer) classifySpan(msg string, begin, end int) Token {
	tok := Token{Begin: begin, End: end}

	hasDigit := false
	hasWildcard := false
	equalsAlphaMatch := false
	allHexDigits := end > begin

	for i := begin; i < end; i++ {
		c := msg[i]
		switch classify(c, t.delimiters) {
		case ClassDigit:
			hasDigit = true
		case ClassAlpha:
			if !hasWildcard && i > 0 && msg[i-1] == '=' {
				equalsAlphaMatch = true
			}
		case ClassWildcard:
			hasWildcard = true
		}
		if !isHexDigit(c) {
			allHexDigits = false
		}
	}
	tok.ContainsWildcard = hasWildcard

	if hasDigit {
		tok.IsVar = true
		return tok
	}
	if allHexDigits && end-begin > 1 {
		tok.IsVar = true
		return tok
	}
	if equalsAlphaMatch {
		tok.IsVar = true
		return tok
	}
	return tok
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
