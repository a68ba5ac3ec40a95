// Package ingest implements the per-file parser state
// machine that drives the schema lexer over an input buffer and emits
// one log message per call, splitting on newline or newline-timestamp
// boundaries.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clpgo/clpcore/internal/automaton"
	"github.com/clpgo/clpcore/internal/charbuf"
	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/lexer"
	"github.com/clpgo/clpcore/internal/logtype"
	"github.com/clpgo/clpcore/internal/schema"
)

// State is the parser's position in its message-splitting state machine.
type State int

const (
	StateInit State = iota
	StateEmittingMessage
	StateStartOfNextMessageHeld
	StateDone
)

// Action tells the caller what to do with the message just returned.
type Action int

const (
	ActionNone Action = iota
	// ActionCompress: hand the message to the logtype assembler and keep
	// parsing.
	ActionCompress
	// ActionCompressAndFinish: same, then close out the file.
	ActionCompressAndFinish
)

// Message is one emitted log message.
type Message struct {
	Raw          string
	Timestamp    time.Time
	HasTimestamp bool
	// Tokens are the lexer tokens of the message, in order, with stream
	// offsets. Slot 0 is the timestamp token when HasTimestamp is set.
	Tokens []lexer.Token
	// Start is the stream offset of the message's first byte.
	Start int
}

// Parameters configures a Parser. Each Parser instance owns its
// automata, lexer state, input buffer and output buffer; nothing is
// shared between instances.
type Parameters struct {
	Schema *schema.Schema
	Reader charbuf.Reader
	// File identifies the input in errors and log entries.
	File string
	// HalfCapacity sizes the input buffer; zero means the default.
	HalfCapacity int
	Logger       *slog.Logger
}

// Parser splits a token stream into messages, one per call.
type Parser struct {
	sch    *schema.Schema
	lex    *lexer.Lexer
	buf    *charbuf.InputBuffer
	out    *charbuf.OutputBuffer[lexer.Token]
	reader charbuf.Reader
	file   string
	logger *slog.Logger

	state        State
	hasTimestamp bool
	held         *lexer.Token

	// Per-message accumulation. msgStart is -1 when no token has been
	// placed since the last emission.
	msgStart     int
	msgEnd       int
	curTimestamp time.Time
	curHasTS     bool
}

// NewParser compiles the schema into the lexer's DFA and returns a
// parser positioned at StateInit.
func NewParser(p Parameters) (*Parser, error) {
	if p.Schema == nil || p.Reader == nil {
		return nil, fmt.Errorf("%w: ingest.NewParser requires a schema and a reader", clperr.BadParam)
	}
	nfa, err := automaton.Build(p.Schema.LexerRules())
	if err != nil {
		return nil, fmt.Errorf("error compiling schema for %s: %w", p.File, err)
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		sch:      p.Schema,
		lex:      lexer.New(automaton.Compile(nfa), p.Schema.Delimiters),
		buf:      charbuf.New(p.HalfCapacity),
		out:      charbuf.NewOutputBuffer[lexer.Token](true),
		reader:   p.Reader,
		file:     p.File,
		logger:   logger,
		msgStart: -1,
	}, nil
}

// State returns the machine's current state.
func (p *Parser) State() State { return p.state }

// Reset prepares the parser for the next file. The previous file's
// tokens become invalid (the input buffer generation is bumped).
func (p *Parser) Reset(r charbuf.Reader, file string) {
	p.buf.Reset()
	p.out.Reset(true)
	p.reader = r
	p.file = file
	p.state = StateInit
	p.hasTimestamp = false
	p.held = nil
	p.msgStart = -1
	p.msgEnd = 0
	p.curHasTS = false
}

func top(tok lexer.Token) (int, bool) {
	if tok.Kind != lexer.KindToken || len(tok.TypeIDs) == 0 {
		return 0, false
	}
	return tok.TypeIDs[0], true
}

// ParseNextMessage advances the state machine until one message has been
// emitted, the input is exhausted, or an error occurs. On a fatal
// per-file error the returned error is a *clperr.FileError carrying the
// file identifier and the last successful byte offset; the parser stays
// usable for the next file after Reset.
func (p *Parser) ParseNextMessage() (*Message, Action, error) {
	switch p.state {
	case StateDone:
		return nil, ActionNone, clperr.EndOfFile
	case StateInit:
		tok, err := p.lex.ScanDelimited(p.buf, p.reader)
		if err != nil {
			return nil, ActionNone, p.fileError(err)
		}
		if tok.Kind == lexer.KindEOF {
			p.state = StateDone
			return nil, ActionNone, clperr.EndOfFile
		}
		if id, ok := top(tok); ok && id == schema.RuleIDFirstTimestamp {
			p.hasTimestamp = true
			p.seedTimestamp(tok)
		} else {
			p.hasTimestamp = false
			p.seedContent(tok)
		}
		p.state = StateEmittingMessage
	case StateStartOfNextMessageHeld:
		held := *p.held
		p.held = nil
		if id, ok := top(held); ok && id == schema.RuleIDNewlineTimestamp {
			// One-way upgrade: once a message arrives with a timestamp,
			// the file is treated as timestamped from then on.
			p.hasTimestamp = true
			p.seedTimestamp(held)
		} else {
			p.seedContent(held)
		}
		p.state = StateEmittingMessage
	}
	return p.emitLoop()
}

// seedTimestamp places a timestamp token in the reserved slot 0 and
// parses its text.
func (p *Parser) seedTimestamp(tok lexer.Token) {
	p.out.Set(0, tok)
	p.noteToken(tok)
	p.curHasTS = true
	text := string(p.buf.Slice(tok.Start, tok.End))
	ts, err := ParseTime(p.sch.TimeLayout, text)
	if err != nil {
		p.logger.Warn("failed to parse matched timestamp",
			slog.String("file", p.file),
			slog.String("value", text),
			slog.Any("error", err))
		return
	}
	p.curTimestamp = ts
}

// seedContent places the first content token at slot 1, leaving the
// reserved timestamp slot empty.
func (p *Parser) seedContent(tok lexer.Token) {
	p.out.Set(1, tok)
	p.noteToken(tok)
}

func (p *Parser) noteToken(tok lexer.Token) {
	if p.msgStart == -1 {
		p.msgStart = tok.Start
	}
	if tok.End > p.msgEnd {
		p.msgEnd = tok.End
	}
}

// emitLoop is the EmittingMessage state: it accumulates tokens until a
// message boundary, end of input, or an error.
func (p *Parser) emitLoop() (*Message, Action, error) {
	for {
		tok, err := p.lex.ScanDelimited(p.buf, p.reader)
		if err != nil {
			return nil, ActionNone, p.fileError(err)
		}
		if tok.Kind == lexer.KindEOF {
			p.state = StateDone
			if p.msgStart == -1 {
				return nil, ActionNone, clperr.EndOfFile
			}
			p.buf.Commit(p.msgEnd)
			return p.emit(), ActionCompressAndFinish, nil
		}

		id, hasID := top(tok)
		isNewline := hasID && id == schema.RuleIDNewline

		if !p.hasTimestamp && isNewline {
			p.out.Append(tok)
			p.noteToken(tok)
			p.buf.Commit(tok.End)
			return p.emit(), ActionCompress, nil
		}

		firstByte, _ := p.buf.ByteAt(tok.Start)
		isNewlineTimestamp := hasID && id == schema.RuleIDNewlineTimestamp
		startOfNext := (p.hasTimestamp && isNewlineTimestamp) ||
			(!p.hasTimestamp && firstByte == '\n' && !isNewline)
		if startOfNext {
			held := tok
			held.Start = tok.Start + 1
			p.held = &held
			// End the current message on a bare newline: the held
			// token's leading '\n' is rewritten as a one-byte uncaught
			// token belonging to this message.
			nl := lexer.Token{
				Kind:       lexer.KindUncaughtString,
				Start:      tok.Start,
				End:        tok.Start + 1,
				Generation: tok.Generation,
			}
			p.out.Append(nl)
			p.noteToken(nl)
			p.buf.Commit(held.Start - 1)
			p.state = StateStartOfNextMessageHeld
			return p.emit(), ActionCompress, nil
		}

		p.out.Append(tok)
		p.noteToken(tok)
	}
}

// emit packages the accumulated tokens into a Message and resets the
// per-message accumulation.
func (p *Parser) emit() *Message {
	m := &Message{
		Raw:          string(p.buf.Slice(p.msgStart, p.msgEnd)),
		Timestamp:    p.curTimestamp,
		HasTimestamp: p.curHasTS,
		Tokens:       append([]lexer.Token(nil), p.out.Tokens()...),
		Start:        p.msgStart,
	}
	p.out.Reset(true)
	p.msgStart = -1
	p.msgEnd = 0
	p.curHasTS = false
	p.curTimestamp = time.Time{}
	return m
}

func (p *Parser) fileError(err error) error {
	kind := clperr.Io
	switch {
	case errors.Is(err, clperr.AllocFailure):
		kind = clperr.AllocFailure
	case errors.Is(err, clperr.LexerFailure):
		kind = clperr.LexerFailure
	case errors.Is(err, clperr.BadParam):
		kind = clperr.BadParam
	}
	p.logger.Error("fatal error parsing file",
		slog.String("file", p.file),
		slog.Int64("offset", int64(p.buf.Pos())),
		slog.Any("error", err))
	return &clperr.FileError{File: p.file, Offset: int64(p.buf.Pos()), Kind: kind, Err: err}
}

// SchemaTokens converts a message's lexer tokens into the variable
// tokens the schema-mode logtype assembler consumes: matched
// variable-rule tokens that are delimiter-flanked on both sides (or sit
// at the message edge). Timestamp and newline structure tokens are never
// variables. Offsets are rebased to the message string.
func (p *Parser) SchemaTokens(m *Message) []logtype.SchemaToken {
	var out []logtype.SchemaToken
	for _, tok := range m.Tokens {
		id, ok := top(tok)
		if !ok {
			continue
		}
		switch id {
		case schema.RuleIDFirstTimestamp, schema.RuleIDNewlineTimestamp, schema.RuleIDNewline:
			continue
		}
		rel := tok.Start - m.Start
		relEnd := tok.End - m.Start
		if rel < 0 || relEnd > len(m.Raw) {
			continue
		}
		if rel > 0 && !p.sch.IsDelimiter(m.Raw[rel-1]) {
			continue
		}
		if relEnd < len(m.Raw) && !p.sch.IsDelimiter(m.Raw[relEnd]) {
			continue
		}
		out = append(out, logtype.SchemaToken{Begin: rel, End: relEnd, Tag: byte(id)})
	}
	return out
}
