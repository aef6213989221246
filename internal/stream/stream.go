// Package stream presents an ordered list of part files as one seekable,
// read-only byte stream.
//
// A Read never crosses a part boundary: when the requested range runs past
// the end of the current part, Read returns the bytes left in that part and
// the next call continues at the first byte of the following part. Callers
// that need a full buffer must loop, as io.ReadFull does.
package stream

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/islishude/unsplit/internal/logger"
)

// VirtualStream is the logical concatenation of its segments.
// It is not safe for concurrent use.
type VirtualStream struct {
	segments []*Segment
	size     int64
	cursor   int64
	log      zerolog.Logger
}

// Open opens every path in order on fsys and maps them back to back.
// The caller's order is the concatenation order; it is not checked against
// the archive contents.
func Open(fsys afero.Fs, paths []string) (*VirtualStream, error) {
	if len(paths) == 0 {
		return nil, &Error{Op: "open", Err: ErrNoParts}
	}
	vs := &VirtualStream{log: logger.New("stream")}
	for _, p := range paths {
		seg, err := openSegment(fsys, p, vs.size)
		if err != nil {
			_ = vs.Close()
			return nil, err
		}
		vs.segments = append(vs.segments, seg)
		vs.size = seg.End()
		vs.log.Debug().Str("path", p).Int64("begin", seg.Begin()).Int64("size", seg.Size()).Msg("segment registered")
	}
	return vs, nil
}

// Size is the total logical length.
func (s *VirtualStream) Size() int64 { return s.size }

// Tell returns the current logical offset.
func (s *VirtualStream) Tell() int64 { return s.cursor }

// Segments returns the segments in logical order.
func (s *VirtualStream) Segments() []*Segment { return s.segments }

// Paths returns the part paths in logical order.
func (s *VirtualStream) Paths() []string {
	out := make([]string, len(s.segments))
	for i, seg := range s.segments {
		out[i] = seg.Path()
	}
	return out
}

// Seek moves the cursor relative to the whole stream. A target outside
// [0, Size()] fails with ErrSeekRange and leaves the cursor untouched.
func (s *VirtualStream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.cursor + offset
	case io.SeekEnd:
		target = s.size + offset
	default:
		return s.cursor, &Error{Op: "seek", Err: fmt.Errorf("invalid whence %d", whence)}
	}
	if target < 0 || target > s.size {
		return s.cursor, &Error{Op: "seek", Err: fmt.Errorf("%w: %d not in [0, %d]", ErrSeekRange, target, s.size)}
	}
	s.cursor = target
	return target, nil
}

// Read reads from the segment holding the cursor. At the end of the stream
// it returns 0, io.EOF.
func (s *VirtualStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	seg := s.find(s.cursor)
	if seg == nil {
		return 0, io.EOF
	}
	n, err := seg.read(p, s.cursor)
	s.cursor += int64(n)
	return n, err
}

func (s *VirtualStream) find(off int64) *Segment {
	if off < 0 || off >= s.size {
		return nil
	}
	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].End() > off
	})
	// zero-length segments share their begin with the next one
	for ; i < len(s.segments); i++ {
		if s.segments[i].Contains(off) {
			return s.segments[i]
		}
	}
	return nil
}

// Close releases every part file handle.
func (s *VirtualStream) Close() error {
	var errs []error
	for _, seg := range s.segments {
		if err := seg.close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.segments = nil
	return errors.Join(errs...)
}
