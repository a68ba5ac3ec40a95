package logtype

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/heuristic"
	"github.com/clpgo/clpcore/internal/schema"
	"github.com/clpgo/clpcore/internal/varenc"
)

// VarDictWriter is the slice of the variable dictionary the assembler
// needs: interning a string and getting back its id.
type VarDictWriter interface {
	AddEntry(value string) (id uint64, isNew bool, err error)
}

// VarDictReader is the slice the decoder needs.
type VarDictReader interface {
	GetValue(id uint64) (string, error)
}

// Assembler walks a message's variable substrings and produces a logtype
// entry plus the ordered encoded-variable list. An Assembler is
// constructed for exactly one Mode; entries it produces can only be
// decoded in that same mode.
type Assembler struct {
	mode   Mode
	tok    *heuristic.Tokenizer
	dict   VarDictWriter
	logger *slog.Logger
}

// Parameters configures an Assembler.
type Parameters struct {
	Mode Mode
	// Delimiters configures the heuristic tokenizer in ModeHeuristic;
	// ignored in ModeSchema (the schema lexer produces the tokens).
	Delimiters []byte
	Dict       VarDictWriter
	Logger     *slog.Logger
}

func NewAssembler(p Parameters) *Assembler {
	return &Assembler{
		mode:   p.Mode,
		tok:    heuristic.New(p.Delimiters),
		dict:   p.Dict,
		logger: p.Logger,
	}
}

// Mode returns the path this assembler was constructed for.
func (a *Assembler) Mode() Mode { return a.mode }

// EncodeMessage splits msg with the heuristic tokenizer and assembles the
// logtype and encoded variables. Only valid in ModeHeuristic.
func (a *Assembler) EncodeMessage(msg string) ([]byte, []int64, error) {
	if a.mode != ModeHeuristic {
		return nil, nil, fmt.Errorf("%w: EncodeMessage requires a heuristic-mode assembler", clperr.BadParam)
	}
	entry := make([]byte, 0, len(msg))
	var vars []int64
	prevEnd := 0
	for _, tk := range a.tok.Tokenize(msg) {
		if !tk.IsVar {
			continue
		}
		entry = append(entry, msg[prevEnd:tk.Begin]...)
		prevEnd = tk.End
		text := msg[tk.Begin:tk.End]
		if v, ok := varenc.EncodeInteger(text); ok {
			entry = append(entry, DelimNonDouble)
			vars = append(vars, v)
			continue
		}
		if v, ok := varenc.EncodeFloat(text); ok {
			entry = append(entry, DelimDouble)
			vars = append(vars, v)
			continue
		}
		id, _, err := a.dict.AddEntry(text)
		if err != nil {
			return nil, nil, fmt.Errorf("error interning variable %q: %w", text, err)
		}
		entry = append(entry, DelimNonDouble)
		vars = append(vars, varenc.EncodeDictID(id))
	}
	entry = append(entry, msg[prevEnd:]...)
	return entry, vars, nil
}

// SchemaToken is one variable token from the schema lexer: a [Begin, End)
// span of the message and the matched rule's tag.
type SchemaToken struct {
	Begin, End int
	Tag        byte
}

// EncodeSchemaMessage assembles a logtype from msg and its schema-lexed
// variable tokens. Only valid in ModeSchema. Static text is whatever lies
// between the given tokens. Inline encoding is attempted only when the
// matched rule is the respective builtin (int, float, hex); every other
// rule's variables go to the dictionary for that rule's tag, so decode
// can always resolve a non-dictionary slot from its tag alone.
func (a *Assembler) EncodeSchemaMessage(msg string, tokens []SchemaToken) ([]byte, []int64, error) {
	if a.mode != ModeSchema {
		return nil, nil, fmt.Errorf("%w: EncodeSchemaMessage requires a schema-mode assembler", clperr.BadParam)
	}
	entry := make([]byte, 0, len(msg))
	var vars []int64
	prevEnd := 0
	for _, tk := range tokens {
		if tk.Begin < prevEnd || tk.End > len(msg) {
			return nil, nil, fmt.Errorf("%w: token [%d,%d) out of order for message of length %d", clperr.BadParam, tk.Begin, tk.End, len(msg))
		}
		entry = append(entry, msg[prevEnd:tk.Begin]...)
		prevEnd = tk.End
		text := msg[tk.Begin:tk.End]

		switch tk.Tag {
		case schema.RuleIDInt:
			if v, ok := varenc.EncodeInteger(text); ok {
				entry = append(entry, DelimNonDouble, tk.Tag)
				vars = append(vars, v)
				continue
			}
		case schema.RuleIDFloat:
			if v, ok := varenc.EncodeFloat(text); ok {
				entry = append(entry, DelimDouble)
				vars = append(vars, v)
				continue
			}
		case schema.RuleIDHex:
			if v, ok := varenc.EncodeHex(text); ok {
				entry = append(entry, DelimNonDouble, tk.Tag)
				vars = append(vars, v)
				continue
			}
		}
		id, _, err := a.dict.AddEntry(text)
		if err != nil {
			return nil, nil, fmt.Errorf("error interning variable %q: %w", text, err)
		}
		entry = append(entry, DelimNonDouble, tk.Tag)
		vars = append(vars, varenc.EncodeDictID(id))
	}
	entry = append(entry, msg[prevEnd:]...)
	return entry, vars, nil
}

// DecodeMessage reconstructs the original message from a logtype entry
// and its encoded variables. In ModeHeuristic, dicts must hold the sole
// dictionary under tag 0. In ModeSchema, dicts is keyed by schema tag.
// Unknown tags are reported and decoding continues, leaving that
// variable's position empty; the first such error is returned after the
// walk completes so the caller can skip just this message.
func DecodeMessage(value []byte, vars []int64, mode Mode, dicts map[byte]VarDictReader, logger *slog.Logger) (string, error) {
	infos := ParseVars(value, mode)
	if len(infos) != len(vars) {
		return "", &clperr.VariableCountMismatchError{Expected: len(infos), Got: len(vars)}
	}
	var sb strings.Builder
	sb.Grow(len(value) * 2)
	var firstErr error
	prev := 0
	for i, info := range infos {
		sb.Write(value[prev:info.Offset])
		prev = info.Offset + 1
		if info.HasTag {
			prev++
		}
		v := vars[i]
		if info.Kind == KindDouble {
			sb.WriteString(varenc.DecodeFloat(v))
			continue
		}
		tag := info.Tag // zero in heuristic mode, the sole dictionary's key
		if varenc.IsDictID(v) {
			dict, ok := dicts[tag]
			if !ok {
				err := &clperr.UnknownSchemaTagError{Tag: tag}
				if logger != nil {
					logger.Warn("no dictionary for schema tag, skipping variable",
						slog.Int("tag", int(tag)),
						slog.Int("varIndex", i))
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			text, err := dict.GetValue(varenc.DecodeDictID(v))
			if err != nil {
				return "", fmt.Errorf("error resolving dictionary variable %d: %w", i, err)
			}
			sb.WriteString(text)
			continue
		}
		switch {
		case mode == ModeHeuristic || tag == schema.RuleIDInt:
			sb.WriteString(varenc.DecodeInteger(v))
		case tag == schema.RuleIDHex:
			sb.WriteString(varenc.DecodeHex(v))
		default:
			err := &clperr.UnknownSchemaTagError{Tag: tag}
			if logger != nil {
				logger.Warn("unknown schema tag for inline-encoded variable, skipping",
					slog.Int("tag", int(tag)),
					slog.Int("varIndex", i))
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	sb.Write(value[prev:])
	return sb.String(), firstErr
}
