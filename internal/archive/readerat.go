package archive

import (
	"errors"
	"io"
	"sync"
)

// seekReaderAt gives random-access codecs an io.ReaderAt over a stream
// whose reads may come back short at part boundaries. Each call seeks and
// keeps reading until p is full or the stream ends.
type seekReaderAt struct {
	mu   sync.Mutex
	rs   io.ReadSeeker
	size int64
}

func (r *seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= r.size {
		return 0, io.EOF
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(r.rs, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}
