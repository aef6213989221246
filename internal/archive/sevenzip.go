package archive

import (
	"io"

	"github.com/bodgit/sevenzip"
)

type sevenZipCodec struct {
	sr  *sevenzip.Reader
	idx int
}

func newSevenZipCodec(ra io.ReaderAt, size int64) (*sevenZipCodec, error) {
	sr, err := sevenzip.NewReader(ra, size)
	if err != nil {
		return nil, err
	}
	return &sevenZipCodec{sr: sr, idx: -1}, nil
}

func (c *sevenZipCodec) count() int { return len(c.sr.File) }

func (c *sevenZipCodec) next() (*Entry, error) {
	if c.idx+1 >= len(c.sr.File) {
		c.idx = len(c.sr.File)
		return nil, io.EOF
	}
	c.idx++
	f := c.sr.File[c.idx]
	mode := f.Mode()
	return &Entry{
		Name:             f.Name,
		Kind:             kindFromMode(mode),
		Mode:             mode.Perm(),
		Modified:         f.Modified,
		CompressedSize:   -1,
		UncompressedSize: sizeOf(f.UncompressedSize),
		CRC32:            f.CRC32,
		// 7z stores digests per stream only when the writer chose to
		HasCRC: f.CRC32 != 0,
	}, nil
}

func (c *sevenZipCodec) open() (io.ReadCloser, error) {
	return c.sr.File[c.idx].Open()
}

func (c *sevenZipCodec) close() error { return nil }
