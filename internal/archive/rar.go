package archive

import (
	"io"

	"github.com/nwaples/rardecode/v2"
)

// rarCodec reads a single-volume rar archive sequentially. Multi-volume
// sets with per-volume headers cannot be concatenated and are rejected by
// the decoder when it reaches the end of the first volume.
type rarCodec struct {
	rr *rardecode.Reader
}

func newRarCodec(r io.Reader) (*rarCodec, error) {
	rr, err := rardecode.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &rarCodec{rr: rr}, nil
}

func (c *rarCodec) count() int { return -1 }

func (c *rarCodec) next() (*Entry, error) {
	h, err := c.rr.Next()
	if err != nil {
		return nil, err
	}
	mode := h.Mode()
	e := &Entry{
		Name:             h.Name,
		Kind:             kindFromMode(mode),
		Mode:             mode.Perm(),
		Modified:         h.ModificationTime,
		CompressedSize:   h.PackedSize,
		UncompressedSize: h.UnPackedSize,
	}
	if h.IsDir {
		e.Kind = KindDir
	}
	if h.UnKnownSize {
		e.UncompressedSize = -1
	}
	return e, nil
}

func (c *rarCodec) open() (io.ReadCloser, error) {
	return io.NopCloser(c.rr), nil
}

func (c *rarCodec) close() error { return nil }
