package engine

import (
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/islishude/unsplit/internal/archive"
	"github.com/islishude/unsplit/internal/stream"
	"github.com/islishude/unsplit/internal/testutil"
)

// recorder is a Collaborator that remembers every call.
type recorder struct {
	mu         sync.Mutex
	events     []Event
	overwrites []string
	failures   []string
	answer     bool
	keepGoing  bool
	onProgress func(Event)
}

func (r *recorder) Progress(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.onProgress
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (r *recorder) Overwrite(path string, _ bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overwrites = append(r.overwrites, path)
	return r.answer
}

func (r *recorder) Failed(archive string, _ error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, archive)
	return r.keepGoing
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) entryEvents() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if !ev.Done {
			out = append(out, ev)
		}
	}
	return out
}

// openSplit writes data as parts of partSize bytes under /in on fsys and
// opens an archive reader over them.
func openSplit(t *testing.T, fsys afero.Fs, dir string, data []byte, partSize int) *archive.Reader {
	t.Helper()
	paths := testutil.Split(t, fsys, dir, "fixture", data, partSize)
	vs, err := stream.Open(fsys, paths)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	r, err := archive.Open(vs, archive.Options{ChunkSize: 64})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}
