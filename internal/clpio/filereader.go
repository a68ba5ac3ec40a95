package clpio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/clpgo/clpcore/internal/clperr"
)

// defaultReadInterval is the fallback polling cadence while tailing, for
// filesystems where fsnotify write events are unreliable.
const defaultReadInterval = 1 * time.Second

// FileReader is a Reader over a single log file. In tail mode, a read at
// end-of-file blocks until the file grows (observed via fsnotify, with a
// ticker as fallback) or the context is cancelled, at which point the
// stream ends. Each open gets a fresh source id.
type FileReader struct {
	filename string
	file     *os.File
	sourceID string

	tail         bool
	ctx          context.Context
	watcher      *fsnotify.Watcher
	readInterval time.Duration

	logger *slog.Logger
}

// FileReaderParams configures a FileReader.
type FileReaderParams struct {
	Filename string
	// Tail keeps the reader alive at end-of-file, waiting for growth.
	Tail bool
	// ReadInterval overrides the tailing fallback poll cadence.
	ReadInterval time.Duration
	Logger       *slog.Logger
}

// NewFileReader opens the file. ctx bounds tail-mode waiting; cancelling
// it turns the next end-of-file into a clean EOF.
func NewFileReader(ctx context.Context, p FileReaderParams) (*FileReader, error) {
	f, err := os.Open(p.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", clperr.Io, p.Filename, err)
	}
	r := &FileReader{
		filename:     p.Filename,
		file:         f,
		sourceID:     uuid.NewString(),
		tail:         p.Tail,
		ctx:          ctx,
		readInterval: p.ReadInterval,
		logger:       p.Logger,
	}
	if r.readInterval <= 0 {
		r.readInterval = defaultReadInterval
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if p.Tail {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			r.logger.Warn("error creating fsnotify watcher, falling back to polling",
				slog.String("fileName", p.Filename),
				slog.Any("error", err))
		} else if err := watcher.Add(filepath.Dir(p.Filename)); err != nil {
			r.logger.Warn("error watching directory, falling back to polling",
				slog.String("fileName", p.Filename),
				slog.Any("error", err))
			watcher.Close()
		} else {
			r.watcher = watcher
		}
	}
	r.logger.Info("opened file",
		slog.String("fileName", p.Filename),
		slog.String("sourceId", r.sourceID))
	return r, nil
}

// SourceID identifies this open of the file.
func (r *FileReader) SourceID() string { return r.sourceID }

// Read implements the Reader contract. In tail mode a read at
// end-of-file blocks until more bytes arrive or the context ends.
func (r *FileReader) Read(dst []byte) (int, bool, error) {
	if r.file == nil {
		return 0, false, clperr.NotInit
	}
	for {
		n, err := r.file.Read(dst)
		if n > 0 {
			return n, false, nil
		}
		if err != nil && err != io.EOF {
			return 0, false, fmt.Errorf("%w: reading %s: %v", clperr.Io, r.filename, err)
		}
		if !r.tail {
			return 0, true, nil
		}
		if !r.waitForGrowth() {
			return 0, true, nil
		}
	}
}

// waitForGrowth blocks until the file plausibly has more bytes. It
// returns false when the context is done and the stream should end.
func (r *FileReader) waitForGrowth() bool {
	ticker := time.NewTicker(r.readInterval)
	defer ticker.Stop()
	var events chan fsnotify.Event
	if r.watcher != nil {
		events = r.watcher.Events
	}
	for {
		select {
		case <-r.ctx.Done():
			return false
		case evt := <-events:
			if evt.Op&fsnotify.Write == 0 || evt.Name != r.filename {
				continue
			}
			return true
		case <-ticker.C:
			return true
		}
	}
}

// Close releases the file and any watcher.
func (r *FileReader) Close() error {
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("%w: closing %s: %v", clperr.Io, r.filename, err)
	}
	return nil
}
