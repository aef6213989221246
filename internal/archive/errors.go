package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrEndOfList is returned by Advance and OpenEntry once the cursor has
	// moved past the last entry. It marks the end of iteration, not a failure.
	ErrEndOfList = errors.New("end of entry list")

	// ErrUnknownFormat is returned when no codec recognizes the stream.
	ErrUnknownFormat = errors.New("unrecognized archive format")

	// ErrChecksum is returned when the CRC-32 of decoded content does not
	// match the value recorded in the archive.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrSizeOverflow is returned when an entry decodes to more bytes than
	// it declares.
	ErrSizeOverflow = errors.New("entry larger than declared size")

	// ErrEntryOpen is returned when the cursor is moved or a second entry
	// is opened while an entry is still open.
	ErrEntryOpen = errors.New("an entry is still open")

	// ErrEntryClosed is returned when reading from a closed entry.
	ErrEntryClosed = errors.New("entry is closed")
)

// Error records a codec failure: the container could not be opened or
// enumerated, or an entry could not be decoded.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
