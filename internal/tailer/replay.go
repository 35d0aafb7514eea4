package tailer

import (
	"io"
	"os"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/aggregator"
)

// Replay returns the already consumed part of each path as a whole source,
// so a restarted session can rebuild what earlier sessions merged before
// it resumes from the checkpoint. Paths without an offset, and files that
// shrank below theirs, are skipped; the tailer rereads those from the start.
func Replay(ckpt *Checkpoint, paths []string) []aggregator.Source {
	var out []aggregator.Source
	for _, path := range paths {
		offset, ok := ckpt.Get(path)
		if !ok || offset <= 0 {
			continue
		}
		fi, err := os.Stat(path)
		if err != nil || fi.Size() < offset {
			continue
		}
		out = append(out, aggregator.Source{
			Name: path,
			Open: func() (io.ReadCloser, error) {
				f, err := os.Open(path)
				if err != nil {
					return nil, err
				}
				return prefixReader{Reader: io.LimitReader(f, offset), Closer: f}, nil
			},
		})
	}
	return out
}

type prefixReader struct {
	io.Reader
	io.Closer
}
