package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/islishude/unsplit/internal/storage/local"
)

var (
	// ErrNotDirectory is returned when the output directory is missing or
	// is not a directory. No entry is touched.
	ErrNotDirectory = errors.New("output is not an existing directory")

	ErrShortWrite         = io.ErrShortWrite
	ErrSymlinkUnsupported = local.ErrSymlinkUnsupported
	ErrUnsafePath         = local.ErrUnsafePath
)

// Error is a filesystem failure while materializing an entry, or a sink
// that accepted fewer bytes than it was given.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
