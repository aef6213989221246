package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrNoParts is returned when a stream is built from an empty part list.
	ErrNoParts = errors.New("no parts given")

	// ErrSeekRange is returned when a seek target falls outside [0, Size()].
	ErrSeekRange = errors.New("seek out of range")

	// ErrSizeMismatch is returned when a part file ends before its recorded size.
	ErrSizeMismatch = errors.New("part file shorter than recorded size")
)

// Error records a failure on one part file or on the logical stream.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("stream %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
