package archive

import (
	"io/fs"
	"time"
)

type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
	// KindLink is a tar hard link to an earlier entry named by Linkname.
	KindLink
	// KindOther covers devices, fifos and tar global headers.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindLink:
		return "link"
	default:
		return "other"
	}
}

// Entry describes the entry under the cursor. It is produced when the entry
// is opened and stays valid until the reader advances.
type Entry struct {
	Name     string
	Kind     Kind
	Mode     fs.FileMode
	Modified time.Time
	// CompressedSize and UncompressedSize are -1 when the codec does not
	// know them up front.
	CompressedSize   int64
	UncompressedSize int64
	CRC32            uint32
	HasCRC           bool
	// Linkname is the link target carried in the header (tar). Zip and 7z
	// store symlink targets as entry content instead.
	Linkname string
	Xattrs   map[string][]byte
	// Uid and Gid are meaningful when HasOwner is set (tar).
	Uid, Gid int
	HasOwner bool
}

func (e *Entry) IsDir() bool     { return e.Kind == KindDir }
func (e *Entry) IsSymlink() bool { return e.Kind == KindSymlink }

func kindFromMode(m fs.FileMode) Kind {
	switch {
	case m.IsDir():
		return KindDir
	case m&fs.ModeSymlink != 0:
		return KindSymlink
	case m.IsRegular():
		return KindFile
	default:
		return KindOther
	}
}

func sizeOf(v uint64) int64 {
	if v > 1<<63-1 {
		return -1
	}
	return int64(v)
}
