package archive

import "io"

// codec is the narrow contract a container library is used through:
// enumerate headers in order and decode the current one.
type codec interface {
	// count is the number of entries, or -1 when only known at the end.
	count() int
	// next moves to the following header and returns io.EOF after the last.
	next() (*Entry, error)
	// open starts decoding the current entry.
	open() (io.ReadCloser, error)
	close() error
}
