package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/dictionary"
	"github.com/clpgo/clpcore/internal/logtype"
	"github.com/clpgo/clpcore/internal/schema"
)

type stringReader struct {
	data []byte
	pos  int
}

func (s *stringReader) Read(dst []byte) (int, bool, error) {
	n := copy(dst, s.data[s.pos:])
	s.pos += n
	return n, s.pos >= len(s.data), nil
}

func newTestParser(t *testing.T, input string) *Parser {
	t.Helper()
	p, err := NewParser(Parameters{
		Schema: schema.Default(),
		Reader: &stringReader{data: []byte(input)},
		File:   "test.log",
	})
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	return p
}

func collect(t *testing.T, p *Parser) []*Message {
	t.Helper()
	var msgs []*Message
	for {
		m, action, err := p.ParseNextMessage()
		if errors.Is(err, clperr.EndOfFile) {
			return msgs
		}
		if err != nil {
			t.Fatalf("ParseNextMessage: %v", err)
		}
		msgs = append(msgs, m)
		if action == ActionCompressAndFinish {
			return msgs
		}
	}
}

func TestTwoMessageSplit(t *testing.T) {
	input := "2024-01-01 00:00:00 first\n2024-01-01 00:00:01 second\n"
	p := newTestParser(t, input)
	msgs := collect(t, p)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Raw != "2024-01-01 00:00:00 first\n" {
		t.Errorf("msgs[0].Raw = %q", msgs[0].Raw)
	}
	if msgs[1].Raw != "2024-01-01 00:00:01 second\n" {
		t.Errorf("msgs[1].Raw = %q", msgs[1].Raw)
	}
	if msgs[1].Start != 26 {
		t.Errorf("msgs[1].Start = %d, want 26", msgs[1].Start)
	}
	for i, m := range msgs {
		if !m.HasTimestamp {
			t.Errorf("msgs[%d].HasTimestamp = false", i)
		}
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !msgs[0].Timestamp.Equal(want) {
		t.Errorf("msgs[0].Timestamp = %v, want %v", msgs[0].Timestamp, want)
	}
}

func TestUntimestampedNewlineSplit(t *testing.T) {
	input := "alpha\nbeta\ngamma\n"
	p := newTestParser(t, input)
	msgs := collect(t, p)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3: %v", len(msgs), msgs)
	}
	wants := []string{"alpha\n", "beta\n", "gamma\n"}
	for i, want := range wants {
		if msgs[i].Raw != want {
			t.Errorf("msgs[%d].Raw = %q, want %q", i, msgs[i].Raw, want)
		}
		if msgs[i].HasTimestamp {
			t.Errorf("msgs[%d].HasTimestamp = true", i)
		}
	}
}

func TestEveryNonFinalMessageEndsWithNewline(t *testing.T) {
	inputs := []string{
		"one\ntwo\nthree",
		"2024-01-01 00:00:00 a\n2024-01-01 00:00:01 b\nno newline tail",
		"mixed 42 vars\nmore 0xbeef here\n",
	}
	for _, input := range inputs {
		p := newTestParser(t, input)
		msgs := collect(t, p)
		for i, m := range msgs[:len(msgs)-1] {
			if !strings.HasSuffix(m.Raw, "\n") {
				t.Errorf("input %q: msgs[%d] = %q does not end with newline", input, i, m.Raw)
			}
		}
	}
}

func TestMessagesPartitionInput(t *testing.T) {
	inputs := []string{
		"2024-01-01 00:00:00 first\n2024-01-01 00:00:01 second\n",
		"alpha\nbeta\ngamma",
		"a longer line with id=42 and load 3.14\nanother one\n",
	}
	for _, input := range inputs {
		p := newTestParser(t, input)
		msgs := collect(t, p)
		var sb strings.Builder
		for _, m := range msgs {
			sb.WriteString(m.Raw)
		}
		if sb.String() != input {
			t.Errorf("messages do not reassemble input:\n got %q\nwant %q", sb.String(), input)
		}
	}
}

func TestTimestampUpgradeIsPermanent(t *testing.T) {
	input := "no timestamp here\n2024-01-01 00:00:00 now timestamped\n2024-01-01 00:00:01 and again\n"
	p := newTestParser(t, input)
	msgs := collect(t, p)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].HasTimestamp {
		t.Errorf("msgs[0] should have no timestamp")
	}
	if !msgs[1].HasTimestamp || !msgs[2].HasTimestamp {
		t.Errorf("msgs[1] and msgs[2] should carry timestamps")
	}
}

func TestLongMessageForcesBufferGrowth(t *testing.T) {
	line := strings.Repeat("x", 1000) + " 42\n"
	p, err := NewParser(Parameters{
		Schema:       schema.Default(),
		Reader:       &stringReader{data: []byte(line + line)},
		File:         "grow.log",
		HalfCapacity: 16,
	})
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	msgs := collect(t, p)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Raw != line || msgs[1].Raw != line {
		t.Errorf("messages corrupted across growth")
	}
}

func TestSchemaTokensFlanking(t *testing.T) {
	input := "took 42 ms feedback 0xbeef\n"
	p := newTestParser(t, input)
	msgs := collect(t, p)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	toks := p.SchemaTokens(msgs[0])
	var texts []string
	for _, tk := range toks {
		texts = append(texts, msgs[0].Raw[tk.Begin:tk.End])
	}
	// "42" and "0xbeef" are delimiter-flanked variables; the hex-looking
	// run inside "feedback" is not flanked and must not appear.
	if len(texts) != 2 || texts[0] != "42" || texts[1] != "0xbeef" {
		t.Fatalf("SchemaTokens = %v, want [42 0xbeef]", texts)
	}
	if toks[0].Tag != schema.RuleIDInt {
		t.Errorf("tag of 42 = %d, want RuleIDInt", toks[0].Tag)
	}
	if toks[1].Tag != schema.RuleIDHex {
		t.Errorf("tag of 0xbeef = %d, want RuleIDHex", toks[1].Tag)
	}
}

func TestEndToEndSchemaEncodeDecode(t *testing.T) {
	input := "2024-01-01 00:00:00 request took 42 ms ratio 0.75\n"
	p := newTestParser(t, input)
	msgs := collect(t, p)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]

	dict := dictionary.NewMemoryVariableDictionary()
	a := logtype.NewAssembler(logtype.Parameters{Mode: logtype.ModeSchema, Dict: dict})
	entry, vars, err := a.EncodeSchemaMessage(m.Raw, p.SchemaTokens(m))
	if err != nil {
		t.Fatalf("EncodeSchemaMessage: %v", err)
	}
	dicts := map[byte]logtype.VarDictReader{}
	for _, info := range logtype.ParseVars(entry, logtype.ModeSchema) {
		if info.HasTag {
			dicts[info.Tag] = dict
		}
	}
	got, err := logtype.DecodeMessage(entry, vars, logtype.ModeSchema, dicts, nil)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got != input {
		t.Fatalf("round trip = %q, want %q", got, input)
	}
}

func TestParserResetForNextFile(t *testing.T) {
	p := newTestParser(t, "first file\n")
	collect(t, p)
	if p.State() != StateDone {
		t.Fatalf("state = %v, want StateDone", p.State())
	}
	p.Reset(&stringReader{data: []byte("second file\n")}, "second.log")
	msgs := collect(t, p)
	if len(msgs) != 1 || msgs[0].Raw != "second file\n" {
		t.Fatalf("after Reset: msgs = %v", msgs)
	}
}

func TestParseTimeLayouts(t *testing.T) {
	if ts, err := ParseTime(LayoutUnix, "1700000000"); err != nil || ts.Unix() != 1700000000 {
		t.Errorf("UNIX: %v, %v", ts, err)
	}
	if ts, err := ParseTime(LayoutUnixMillis, "1700000000123"); err != nil || ts.UnixMilli() != 1700000000123 {
		t.Errorf("UNIX_MILLIS: %v, %v", ts, err)
	}
	if ts, err := ParseTime(LayoutUnixDecimalNanos, "1700000000.500"); err != nil || ts.Unix() != 1700000000 {
		t.Errorf("UNIX_DECIMAL_NANOS: %v, %v", ts, err)
	}
	if ts, err := ParseTime("2006-01-02 15:04:05", "2024-01-01 00:00:00"); err != nil || ts.Year() != 2024 {
		t.Errorf("layout parse: %v, %v", ts, err)
	}
	if ts, err := ParseTime("", "2024-01-01 00:00:00"); err != nil || ts.Year() != 2024 {
		t.Errorf("sniffed parse: %v, %v", ts, err)
	}
}

func TestParseTimeRejectsMalformedValues(t *testing.T) {
	bad := []struct {
		layout string
		value  string
	}{
		{LayoutUnix, "not a number"},
		{LayoutUnixDecimalNanos, "1700000000"},
		{LayoutUnixDecimalNanos, "1.2.3"},
		{"2006-01-02 15:04:05", "noon-ish"},
	}
	for _, tt := range bad {
		_, err := ParseTime(tt.layout, tt.value)
		if !errors.Is(err, clperr.BadParam) {
			t.Errorf("ParseTime(%q, %q) err = %v, want BadParam", tt.layout, tt.value, err)
		}
	}
}
