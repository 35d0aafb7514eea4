package aggregator

import (
	"bytes"
	"io"
	"os"
)

// Source is one unit of input: a whole log file or a chunk appended to one.
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)

	// Continuation marks an appended chunk. Its preamble is not stripped.
	Continuation bool
}

// FileSource reads the whole file at path.
func FileSource(path string) Source {
	return Source{
		Name: path,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// BytesSource wraps an in-memory buffer.
func BytesSource(name string, data []byte, continuation bool) Source {
	return Source{
		Name:         name,
		Open:         func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
		Continuation: continuation,
	}
}

// FileSources maps paths to sources in order.
func FileSources(paths []string) []Source {
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		out = append(out, FileSource(p))
	}
	return out
}
