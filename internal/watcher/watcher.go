package watcher

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Event represents a change to a log file in a watched folder.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher monitors folders for log files whose base name matches a
// pattern, including files created after startup.
type Watcher struct {
	fsw     *fsnotify.Watcher
	Events  chan Event
	pattern string
	dirs    []string
	paths   []string
	log     zerolog.Logger
}

// New watches each dir for files matching pattern (e.g. "*.LOG.txt").
// Files already present are listed by Paths in name order.
func New(dirs []string, pattern string, log zerolog.Logger) (*Watcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		Events:  make(chan Event, 256),
		pattern: pattern,
		log:     log.With().Str("component", "watcher").Logger(),
	}

	for _, d := range dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			w.log.Warn().Err(err).Str("dir", d).Msg("cannot resolve folder")
			continue
		}
		if err := fsw.Add(abs); err != nil {
			w.log.Warn().Err(err).Str("dir", abs).Msg("cannot watch folder")
			continue
		}
		w.dirs = append(w.dirs, abs)

		matches, err := ExpandGlob(filepath.Join(abs, pattern))
		if err != nil {
			w.log.Warn().Err(err).Str("dir", abs).Msg("failed to list existing files")
			continue
		}
		w.paths = append(w.paths, matches...)
	}
	slices.Sort(w.paths)

	return w, nil
}

// Start forwards matching events. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.Matches(ev.Name) {
				continue
			}
			switch {
			case ev.Op&fsnotify.Write != 0,
				ev.Op&fsnotify.Create != 0,
				ev.Op&fsnotify.Remove != 0,
				ev.Op&fsnotify.Rename != 0:
				select {
				case w.Events <- Event{Path: ev.Name, Op: ev.Op}:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// Matches reports whether path's base name matches the file pattern.
func (w *Watcher) Matches(path string) bool {
	ok, err := doublestar.Match(w.pattern, filepath.Base(path))
	return err == nil && ok
}

// Paths returns the matching files present at startup.
func (w *Watcher) Paths() []string {
	return w.paths
}

// Dirs returns the folders being watched.
func (w *Watcher) Dirs() []string {
	return w.dirs
}

// ExpandGlob resolves a glob pattern to matching file paths.
// Supports recursive patterns like logs/**/*.LOG.txt via doublestar.
func ExpandGlob(pattern string) ([]string, error) {
	return doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
}
