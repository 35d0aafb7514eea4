package tailer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Position is how far a log file has been consumed. Offset always sits on
// a line boundary.
type Position struct {
	Offset  int64     `json:"offset"`
	Updated time.Time `json:"updated"`
}

// checkpointData is the on-disk JSON structure.
type checkpointData struct {
	Version int                 `json:"version"`
	Files   map[string]Position `json:"files"`
}

// Checkpoint persists consumed offsets so live processing resumes after a
// restart without merging the same lines twice.
type Checkpoint struct {
	mu    sync.RWMutex
	path  string
	data  checkpointData
	dirty bool
}

// NewCheckpoint loads the checkpoint at path. A missing file starts empty;
// a corrupt one is an error so offsets are never silently reset.
func NewCheckpoint(path string) (*Checkpoint, error) {
	c := &Checkpoint{
		path: path,
		data: checkpointData{Version: 1, Files: make(map[string]Position)},
	}
	if path == "" {
		return c, nil
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return c, nil
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	if c.data.Files == nil {
		c.data.Files = make(map[string]Position)
	}
	return c, nil
}

// Get returns the saved offset for a file path.
func (c *Checkpoint) Get(path string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.data.Files[path]
	return p.Offset, ok
}

// Set records the consumed offset for a file path.
func (c *Checkpoint) Set(path string, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Files[path] = Position{Offset: offset, Updated: time.Now().UTC()}
	c.dirty = true
}

// Delete forgets a file, e.g. after it was removed.
func (c *Checkpoint) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data.Files[path]; ok {
		delete(c.data.Files, path)
		c.dirty = true
	}
}

// Save writes the checkpoint atomically if anything changed. A checkpoint
// without a path is kept in memory only.
func (c *Checkpoint) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" || !c.dirty {
		return nil
	}

	raw, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return err
	}
	c.dirty = false
	return nil
}
