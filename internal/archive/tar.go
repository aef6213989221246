package archive

import (
	"archive/tar"
	"io"

	"github.com/islishude/unsplit/internal/compress"
)

// tarCodec reads a tar stream, optionally compressed, front to back.
type tarCodec struct {
	rc  io.ReadCloser
	tr  *tar.Reader
	typ compress.Type
}

func newTarCodec(r io.Reader, explicit compress.Type, hint string) (*tarCodec, error) {
	if explicit == "" {
		explicit = compress.Auto
	}
	rc, typ, err := compress.NewReader(io.NopCloser(r), explicit, hint)
	if err != nil {
		return nil, err
	}
	return &tarCodec{rc: rc, tr: tar.NewReader(rc), typ: typ}, nil
}

func (c *tarCodec) count() int { return -1 }

func (c *tarCodec) next() (*Entry, error) {
	hdr, err := c.tr.Next()
	if err != nil {
		return nil, err
	}
	xattrs, err := decodeXattrs(hdr)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Name:             hdr.Name,
		Kind:             tarKind(hdr.Typeflag),
		Mode:             hdr.FileInfo().Mode().Perm(),
		Modified:         hdr.ModTime,
		CompressedSize:   -1,
		UncompressedSize: hdr.Size,
		Linkname:         hdr.Linkname,
		Xattrs:           xattrs,
		Uid:              hdr.Uid,
		Gid:              hdr.Gid,
		HasOwner:         true,
	}
	if e.Kind != KindFile {
		e.UncompressedSize = 0
	}
	return e, nil
}

func (c *tarCodec) open() (io.ReadCloser, error) {
	return io.NopCloser(c.tr), nil
}

func (c *tarCodec) close() error { return c.rc.Close() }

func tarKind(flag byte) Kind {
	switch flag {
	case tar.TypeReg, tar.TypeRegA, tar.TypeCont:
		return KindFile
	case tar.TypeDir:
		return KindDir
	case tar.TypeSymlink:
		return KindSymlink
	case tar.TypeLink:
		return KindLink
	default:
		return KindOther
	}
}
