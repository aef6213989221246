//go:build unix

package engine

import (
	"io/fs"
	"sync"

	"golang.org/x/sys/unix"
)

// currentUmask reads the process umask once. Reading it means setting it,
// so it must happen before any files are created concurrently.
var currentUmask = sync.OnceValue(func() fs.FileMode {
	old := unix.Umask(0)
	unix.Umask(old)
	return fs.FileMode(old)
})
