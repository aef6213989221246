package stream

import (
	"errors"
	"io"

	"github.com/spf13/afero"
)

// Segment is one part file mapped onto [Begin, End) of the logical stream.
type Segment struct {
	path  string
	begin int64
	size  int64
	file  afero.File
}

func openSegment(fsys afero.Fs, path string, begin int64) (*Segment, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &Error{Op: "stat", Path: path, Err: err}
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, &Error{Op: "open", Path: path, Err: errors.New("is a directory")}
	}
	return &Segment{path: path, begin: begin, size: st.Size(), file: f}, nil
}

func (s *Segment) Path() string { return s.path }
func (s *Segment) Begin() int64 { return s.begin }
func (s *Segment) End() int64   { return s.begin + s.size }
func (s *Segment) Size() int64  { return s.size }

// Contains reports whether the logical offset off is served by this segment.
func (s *Segment) Contains(off int64) bool {
	return off >= s.begin && off < s.End()
}

// read fills p from the logical offset off, clipped to the end of the
// segment. It returns fewer bytes than len(p) only when the segment ends.
func (s *Segment) read(p []byte, off int64) (int, error) {
	if !s.Contains(off) {
		return 0, &Error{Op: "read", Path: s.path, Err: ErrSeekRange}
	}
	local := off - s.begin
	if avail := s.size - local; int64(len(p)) > avail {
		p = p[:avail]
	}
	n, err := s.file.ReadAt(p, local)
	if n == len(p) {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = ErrSizeMismatch
	}
	return n, &Error{Op: "read", Path: s.path, Err: err}
}

func (s *Segment) close() error {
	if err := s.file.Close(); err != nil {
		return &Error{Op: "close", Path: s.path, Err: err}
	}
	return nil
}
