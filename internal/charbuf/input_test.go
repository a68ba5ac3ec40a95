package charbuf

import "testing"

type sliceReader struct {
	data []byte
	pos  int
}

func (s *sliceReader) Read(dst []byte) (int, bool, error) {
	n := copy(dst, s.data[s.pos:])
	s.pos += n
	return n, s.pos >= len(s.data), nil
}

func TestInputBufferFillAndRead(t *testing.T) {
	r := &sliceReader{data: []byte("hello world")}
	b := New(8)

	if err := b.Fill(r); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	for i, want := range []byte("hello world") {
		if i >= b.LastReadPos() {
			break
		}
		got, ok := b.ByteAt(i)
		if !ok || got != want {
			t.Fatalf("ByteAt(%d) = %v,%v, want %v,true", i, got, ok, want)
		}
	}
}

func TestInputBufferGrowPreservesBytes(t *testing.T) {
	r := &sliceReader{data: []byte("0123456789abcdef")}
	b := New(4)
	if err := b.Fill(r); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	gen := b.Generation()
	if err := b.Grow(); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	if b.Generation() != gen {
		t.Fatalf("Grow must not change Generation, got %d want %d", b.Generation(), gen)
	}
	for i := 0; i < b.LastReadPos(); i++ {
		got, ok := b.ByteAt(i)
		if !ok || got != r.data[i] {
			t.Fatalf("ByteAt(%d) after Grow = %v,%v, want %v,true", i, got, ok, r.data[i])
		}
	}
}

func TestInputBufferRecyclesConsumedHalves(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwxyz")
	r := &sliceReader{data: data}
	b := New(4)

	// Consume the stream byte by byte, committing as we go; the window
	// should recycle halves and never need to grow.
	pos := 0
	for pos < len(data) {
		if b.AtFailPos(pos) {
			if b.FinishedReadingInput() {
				break
			}
			if !b.SafeToRead() {
				t.Fatalf("SafeToRead false at pos %d with everything consumed", pos)
			}
			if err := b.Fill(r); err != nil {
				t.Fatalf("Fill at pos %d: %v", pos, err)
			}
			continue
		}
		got, ok := b.ByteAt(pos)
		if !ok || got != data[pos] {
			t.Fatalf("ByteAt(%d) = %q,%v, want %q", pos, got, ok, data[pos])
		}
		pos++
		b.Commit(pos)
	}
	if pos != len(data) {
		t.Fatalf("consumed %d bytes, want %d", pos, len(data))
	}
	if b.Capacity() != 8 {
		t.Fatalf("Capacity() = %d, want 8 (no growth needed)", b.Capacity())
	}
}

func TestInputBufferFillRefusesOverwritingUnconsumed(t *testing.T) {
	r := &sliceReader{data: []byte("0123456789abcdef")}
	b := New(4)
	if err := b.Fill(r); err != nil {
		t.Fatalf("Fill 1: %v", err)
	}
	if err := b.Fill(r); err != nil {
		t.Fatalf("Fill 2: %v", err)
	}
	// Window is full and nothing is consumed: a further Fill must refuse
	// rather than clobber bytes the scan still needs.
	if b.SafeToRead() {
		t.Fatalf("SafeToRead should be false with a full, unconsumed window")
	}
	if err := b.Fill(r); err == nil {
		t.Fatalf("Fill should refuse to overwrite unconsumed input")
	}
}

func TestInputBufferGrowThenResumeScan(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	r := &sliceReader{data: data}
	b := New(2)
	pos := 0
	// Never commit: a token longer than the window forces growth.
	for pos < len(data) {
		if b.AtFailPos(pos) {
			if b.FinishedReadingInput() {
				break
			}
			if b.SafeToRead() {
				if err := b.Fill(r); err != nil {
					t.Fatalf("Fill: %v", err)
				}
			} else if err := b.Grow(); err != nil {
				t.Fatalf("Grow: %v", err)
			}
			continue
		}
		got, ok := b.ByteAt(pos)
		if !ok || got != data[pos] {
			t.Fatalf("ByteAt(%d) = %q,%v, want %q", pos, got, ok, data[pos])
		}
		pos++
	}
	if pos != len(data) {
		t.Fatalf("scanned %d bytes, want %d", pos, len(data))
	}
}

func TestInputBufferResetBumpsGeneration(t *testing.T) {
	b := New(4)
	gen := b.Generation()
	b.Reset()
	if b.Generation() == gen {
		t.Fatalf("Reset must bump Generation")
	}
	if b.ConsumedPos() != 0 || b.Pos() != 0 {
		t.Fatalf("Reset must zero Pos/ConsumedPos")
	}
}

func TestOutputBufferReservesTimestampSlot(t *testing.T) {
	o := NewOutputBuffer[string](true)
	if o.Pos() != 1 {
		t.Fatalf("Pos() = %d, want 1", o.Pos())
	}
	o.Set(0, "timestamp")
	o.Append("second")
	tokens := o.Tokens()
	if len(tokens) != 2 || tokens[0] != "timestamp" || tokens[1] != "second" {
		t.Fatalf("Tokens() = %v", tokens)
	}
}

func TestOutputBufferGrowsOnOverflow(t *testing.T) {
	o := NewOutputBuffer[int](false)
	for i := 0; i < 100; i++ {
		o.Append(i)
	}
	tokens := o.Tokens()
	if len(tokens) != 100 {
		t.Fatalf("len(Tokens()) = %d, want 100", len(tokens))
	}
	for i, v := range tokens {
		if v != i {
			t.Fatalf("Tokens()[%d] = %d, want %d", i, v, i)
		}
	}
}
