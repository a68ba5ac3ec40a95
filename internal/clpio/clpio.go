// Package clpio supplies the byte-source contract the ingest parser
// consumes, a seekable output contract for the archive layer, and
// concrete file-backed implementations including a tailing reader for
// growing log files.
package clpio

import (
	"bufio"
	"fmt"
	"os"

	"github.com/clpgo/clpcore/internal/charbuf"
	"github.com/clpgo/clpcore/internal/clperr"
)

// Reader is the byte-source contract: a read may return fewer bytes
// than requested without signaling EOF; only eof=true means no more
// bytes will ever arrive. It is the same contract charbuf consumes.
type Reader = charbuf.Reader

// Writer is the seekable output contract the archive layer writes
// through.
type Writer interface {
	Write(p []byte) (int, error)
	Flush() error
	SeekFromBegin(pos int64) error
	SeekFromCurrent(offset int64) error
	Pos() (uint64, error)
}

// FileWriter is a buffered, seekable Writer over a file.
type FileWriter struct {
	file *os.File
	bw   *bufio.Writer
}

// NewFileWriter creates (truncating) the named file.
func NewFileWriter(filename string) (*FileWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", clperr.Io, filename, err)
	}
	return &FileWriter{file: f, bw: bufio.NewWriter(f)}, nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	if w.file == nil {
		return 0, clperr.NotInit
	}
	n, err := w.bw.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: writing %s: %v", clperr.Io, w.file.Name(), err)
	}
	return n, nil
}

func (w *FileWriter) Flush() error {
	if w.file == nil {
		return clperr.NotInit
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("%w: flushing %s: %v", clperr.Io, w.file.Name(), err)
	}
	return nil
}

// SeekFromBegin flushes buffered output and repositions the file cursor.
func (w *FileWriter) SeekFromBegin(pos int64) error {
	return w.seek(pos, 0)
}

// SeekFromCurrent flushes buffered output and moves the cursor relative
// to its current position.
func (w *FileWriter) SeekFromCurrent(offset int64) error {
	return w.seek(offset, 1)
}

func (w *FileWriter) seek(offset int64, whence int) error {
	if w.file == nil {
		return clperr.NotInit
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("%w: flushing %s before seek: %v", clperr.Io, w.file.Name(), err)
	}
	if _, err := w.file.Seek(offset, whence); err != nil {
		return fmt.Errorf("%w: seeking %s: %v", clperr.Io, w.file.Name(), err)
	}
	return nil
}

// Pos returns the logical write position (file cursor plus buffered
// bytes).
func (w *FileWriter) Pos() (uint64, error) {
	if w.file == nil {
		return 0, clperr.NotInit
	}
	pos, err := w.file.Seek(0, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: querying position of %s: %v", clperr.Io, w.file.Name(), err)
	}
	return uint64(pos) + uint64(w.bw.Buffered()), nil
}

// Close flushes and closes the underlying file.
func (w *FileWriter) Close() error {
	if w.file == nil {
		return clperr.NotInit
	}
	if err := w.bw.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("%w: flushing %s on close: %v", clperr.Io, w.file.Name(), err)
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return fmt.Errorf("%w: closing file: %v", clperr.Io, err)
	}
	return nil
}
