package engine

import "github.com/islishude/unsplit/internal/archive"

// Event reports one processed entry, or with Done set, the end of an
// archive.
type Event struct {
	Archive string
	Entry   string
	Kind    archive.Kind
	Size    int64
	// Written is the number of content bytes decoded for the entry.
	Written int64
	// Index is zero-based; Total is -1 when the format does not know it.
	Index int
	Total int
	// Skipped is set when the entry was not written: the overwrite was
	// declined or the kind cannot be extracted.
	Skipped bool
	// Filtered is set for entries left out by selection options.
	Filtered bool
	Done     bool
	Canceled bool
	// Err is the failure that ended the archive, on the Done event only.
	Err error
}

// Collaborator is the interactive side of an extraction. Every call is a
// synchronous round trip: extraction does not continue until it returns.
type Collaborator interface {
	// Progress is called after each entry closes and once more with Done
	// set when the archive ends.
	Progress(ev Event)
	// Overwrite decides whether an existing non-directory at path is
	// replaced. isDir is the kind of the incoming entry.
	Overwrite(path string, isDir bool) bool
	// Failed is told why an archive failed and answers whether the queue
	// moves on to the next archive.
	Failed(archive string, err error) bool
}
