package tailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/aggregator"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/watcher"
)

// Tailer turns watcher events into aggregator sources: the first read of
// a file is a whole source, later appends become continuation chunks.
// Only complete lines are emitted; a trailing partial line waits for the
// next write.
type Tailer struct {
	files     map[string]*trackedFile
	out       chan aggregator.Source
	ckpt      *Checkpoint
	events    <-chan watcher.Event
	initial   []string
	fromStart bool
	log       zerolog.Logger
}

type trackedFile struct {
	path    string
	offset  int64  // bytes read so far
	pending []byte // partial line buffer
}

// committed is the offset of the last complete line.
func (tf *trackedFile) committed() int64 {
	return tf.offset - int64(len(tf.pending))
}

// Options configures a Tailer.
type Options struct {
	// FromStart reads files without a checkpoint from the beginning
	// instead of from their current end.
	FromStart bool
	Logger    zerolog.Logger
}

// New creates a Tailer fed by the given Watcher.
func New(w *watcher.Watcher, ckpt *Checkpoint, opts Options) *Tailer {
	return &Tailer{
		files:     make(map[string]*trackedFile),
		out:       make(chan aggregator.Source, 64),
		ckpt:      ckpt,
		events:    w.Events,
		initial:   w.Paths(),
		fromStart: opts.FromStart,
		log:       opts.Logger.With().Str("component", "tailer").Logger(),
	}
}

// Sources returns the channel of sources to merge, in append order.
func (t *Tailer) Sources() <-chan aggregator.Source {
	return t.out
}

// Start processes watcher events until the context is cancelled or the
// watcher stops. It closes the Sources channel on return.
func (t *Tailer) Start(ctx context.Context) {
	defer close(t.out)
	defer t.saveCheckpoint()

	for _, p := range t.initial {
		t.track(p, false)
		if !t.readNew(ctx, p) {
			return
		}
	}
	t.saveCheckpoint()

	saveTicker := time.NewTicker(5 * time.Second)
	defer saveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-t.events:
			if !ok {
				return
			}
			if !t.handleEvent(ctx, ev) {
				return
			}

		case <-saveTicker.C:
			t.saveCheckpoint()
		}
	}
}

// handleEvent dispatches watcher events. It returns false once the
// context is done.
func (t *Tailer) handleEvent(ctx context.Context, ev watcher.Event) bool {
	switch {
	case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
		t.track(ev.Path, ev.Op&fsnotify.Create != 0)
		return t.readNew(ctx, ev.Path)

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(t.files, ev.Path)
		t.ckpt.Delete(ev.Path)
		t.log.Info().Str("file", ev.Path).Msg("file removed")
	}
	return true
}

// track starts following a file, resuming from the checkpoint when one
// exists. Files created while running are always read from the start.
func (t *Tailer) track(path string, created bool) {
	if _, ok := t.files[path]; ok {
		return
	}

	var offset int64
	if saved, ok := t.ckpt.Get(path); ok {
		offset = saved
	} else if !t.fromStart && !created {
		if fi, err := os.Stat(path); err == nil {
			offset = fi.Size()
		}
	}
	t.files[path] = &trackedFile{path: path, offset: offset}
	t.log.Debug().Str("file", path).Int64("offset", offset).Msg("tracking")
}

// readNew reads from the last offset to EOF and emits the complete lines
// as one source.
func (t *Tailer) readNew(ctx context.Context, path string) bool {
	tf, ok := t.files[path]
	if !ok {
		return true
	}

	data, truncated, err := readFrom(path, tf.offset)
	if err != nil {
		t.log.Warn().Err(err).Str("file", path).Msg("read failed")
		return true
	}
	if truncated {
		t.log.Warn().Str("file", path).Msg("file shrank, reading from the start")
		tf.offset, tf.pending = 0, nil
	}
	if len(data) == 0 {
		return true
	}

	start := tf.committed()
	buf := append(tf.pending, data...)
	tf.offset += int64(len(data))

	cut := bytes.LastIndexByte(buf, '\n')
	if cut < 0 {
		tf.pending = buf
		return true
	}
	chunk := buf[:cut+1]
	tf.pending = bytes.Clone(buf[cut+1:])

	name := path
	if start > 0 {
		name = fmt.Sprintf("%s@%d", path, start)
	}
	src := aggregator.BytesSource(name, chunk, start > 0)

	select {
	case t.out <- src:
		t.ckpt.Set(path, tf.committed())
		return true
	case <-ctx.Done():
		return false
	}
}

// readFrom returns the bytes after offset. truncated reports that the file
// is now shorter than offset, in which case the whole file is returned.
func readFrom(path string, offset int64) (data []byte, truncated bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	if fi.Size() < offset {
		truncated, offset = true, 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, false, err
	}
	data, err = io.ReadAll(f)
	return data, truncated, err
}

// saveCheckpoint persists the current offsets to disk.
func (t *Tailer) saveCheckpoint() {
	if err := t.ckpt.Save(); err != nil {
		t.log.Error().Err(err).Msg("checkpoint save failed")
	}
}
