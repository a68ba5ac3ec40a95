// Package charbuf implements the sliding input byte window and the
// growable output token list that sit between the external reader and
// the lexer.
package charbuf

import (
	"fmt"

	"github.com/clpgo/clpcore/internal/clperr"
)

// Reader is the external byte source. A read may return fewer bytes
// than requested without signaling EOF; only eof=true means no more
// bytes will ever arrive.
type Reader interface {
	Read(dst []byte) (n int, eof bool, err error)
}

// maxCapacity bounds how far an InputBuffer will grow before growth is
// reported as clperr.AllocFailure instead of silently doubling forever.
const maxCapacity = 1 << 28 // 256 MiB, generous for a single log message

// InputBuffer is a byte window over the input stream, operated as two
// logical halves: each Fill reads one half's worth of bytes, and a half
// is recycled only once the caller has committed (consumed) past it.
//
// All positions (Pos, ConsumedPos, LastReadPos) are monotonically
// increasing stream offsets, not physical indexes; the window slides
// under them as halves are recycled. Token offsets stay valid across
// both recycling and growth, and are invalidated only by Reset, tracked
// via Generation.
type InputBuffer struct {
	data []byte
	// halfCap is len(data)/2; each half is filled by one Read call.
	halfCap int
	// base is the stream offset of data[0].
	base int

	pos                  int
	lastReadPos          int
	consumedPos          int
	lastReadWasFirstHalf bool
	finishedReadingInput bool

	generation uint64
}

// New creates an InputBuffer with the given per-half capacity (so total
// capacity is 2*halfCapacity).
func New(halfCapacity int) *InputBuffer {
	if halfCapacity <= 0 {
		halfCapacity = 4096
	}
	return &InputBuffer{
		data:    make([]byte, halfCapacity*2),
		halfCap: halfCapacity,
	}
}

// Generation identifies the current backing stream. A Token computed
// before a Reset call that bumped Generation is no longer valid to read
// from this buffer. Growth does not bump it; offsets remain valid across
// growth.
func (b *InputBuffer) Generation() uint64 { return b.generation }

// Pos returns the current scan cursor.
func (b *InputBuffer) Pos() int { return b.pos }

// SetPos moves the scan cursor, e.g. after a successful token match.
func (b *InputBuffer) SetPos(p int) { b.pos = p }

// ConsumedPos returns the caller's commit point: bytes before this offset
// are free to be recycled by a future read.
func (b *InputBuffer) ConsumedPos() int { return b.consumedPos }

// Commit advances ConsumedPos. The caller does this after emitting each
// complete message.
func (b *InputBuffer) Commit(pos int) {
	if pos > b.consumedPos {
		b.consumedPos = pos
	}
}

// Capacity returns the total window size (both halves).
func (b *InputBuffer) Capacity() int { return len(b.data) }

// FinishedReadingInput reports whether the reader has signaled EOF.
func (b *InputBuffer) FinishedReadingInput() bool { return b.finishedReadingInput }

// ByteAt returns the byte at stream offset pos, or ok=false if pos is
// outside the currently readable window [base, lastReadPos).
func (b *InputBuffer) ByteAt(pos int) (c byte, ok bool) {
	if pos < b.base || pos >= b.lastReadPos {
		return 0, false
	}
	return b.data[pos-b.base], true
}

// Slice returns the readable window [from, to) by stream offset. The
// caller must not hold the slice across a Fill or Grow.
func (b *InputBuffer) Slice(from, to int) []byte {
	return b.data[from-b.base : to-b.base]
}

// LastReadPos is the stream offset just past the most recently read data.
func (b *InputBuffer) LastReadPos() int { return b.lastReadPos }

// AtFailPos reports whether pos sits at the boundary where the next byte
// would require data not yet read into the buffer. The lexer driver
// catches this and either triggers a read (if safe) or growth.
func (b *InputBuffer) AtFailPos(pos int) bool {
	return pos >= b.lastReadPos
}

// SafeToRead reports whether a fresh read is safe: either the window
// still has room for another half, or the half about to be recycled lies
// entirely before ConsumedPos.
func (b *InputBuffer) SafeToRead() bool {
	if b.finishedReadingInput {
		return false
	}
	if b.lastReadPos-b.base < len(b.data) {
		return true
	}
	return b.consumedPos >= b.base+b.halfCap
}

// Fill reads up to one half from r, appending to the readable window,
// recycling the oldest half first if the window is full and that half is
// consumed. Read failures surface as clperr.Io.
func (b *InputBuffer) Fill(r Reader) error {
	if b.finishedReadingInput {
		return nil
	}
	if b.lastReadPos-b.base == len(b.data) {
		if b.consumedPos < b.base+b.halfCap {
			return fmt.Errorf("%w: refusing to overwrite unconsumed input at offset %d", clperr.BadParam, b.consumedPos)
		}
		// Recycle the chronologically older half.
		copy(b.data, b.data[b.halfCap:])
		b.base += b.halfCap
	}
	start := b.lastReadPos - b.base
	end := start + b.halfCap
	if end > len(b.data) {
		end = len(b.data)
	}
	n, eof, err := r.Read(b.data[start:end])
	if err != nil {
		return fmt.Errorf("%w: reading input half at offset %d: %v", clperr.Io, b.lastReadPos, err)
	}
	b.lastReadWasFirstHalf = start < b.halfCap
	b.lastReadPos += n
	if eof {
		b.finishedReadingInput = true
	}
	return nil
}

// Grow doubles the window's capacity, copying existing content so that
// byte order is preserved. Outstanding token offsets remain valid: Grow
// never changes which byte lives at a given stream offset, only the
// storage behind the window.
func (b *InputBuffer) Grow() error {
	if len(b.data) >= maxCapacity {
		return fmt.Errorf("%w: input buffer already at maximum size %d", clperr.AllocFailure, maxCapacity)
	}
	newHalfCap := b.halfCap * 2
	newData := make([]byte, newHalfCap*2)
	copy(newData, b.data[:b.lastReadPos-b.base])
	b.data = newData
	b.halfCap = newHalfCap
	return nil
}

// Reset clears the buffer for reuse with a new input stream. All
// previously emitted Token byte-range references become invalid.
func (b *InputBuffer) Reset() {
	b.base = 0
	b.pos = 0
	b.lastReadPos = 0
	b.consumedPos = 0
	b.lastReadWasFirstHalf = false
	b.finishedReadingInput = false
	b.generation++
}
