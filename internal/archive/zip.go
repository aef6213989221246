package archive

import (
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/charmap"

	"github.com/islishude/unsplit/internal/compress"
)

// zip general purpose flag: name and comment are UTF-8
const zipFlagUTF8 = 0x800

type zipCodec struct {
	zr  *zip.Reader
	idx int
}

func newZipCodec(ra io.ReaderAt, size int64) (*zipCodec, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, err
	}
	for method, dcomp := range compress.ZipDecompressors() {
		zr.RegisterDecompressor(method, dcomp)
	}
	return &zipCodec{zr: zr, idx: -1}, nil
}

func (c *zipCodec) count() int { return len(c.zr.File) }

func (c *zipCodec) next() (*Entry, error) {
	if c.idx+1 >= len(c.zr.File) {
		c.idx = len(c.zr.File)
		return nil, io.EOF
	}
	c.idx++
	f := c.zr.File[c.idx]
	mode := f.Mode()
	return &Entry{
		Name:             zipName(&f.FileHeader),
		Kind:             kindFromMode(mode),
		Mode:             mode.Perm(),
		Modified:         f.Modified,
		CompressedSize:   sizeOf(f.CompressedSize64),
		UncompressedSize: sizeOf(f.UncompressedSize64),
		CRC32:            f.CRC32,
		HasCRC:           true,
	}, nil
}

func (c *zipCodec) open() (io.ReadCloser, error) {
	return c.zr.File[c.idx].Open()
}

func (c *zipCodec) close() error { return nil }

// zipName decodes names written without the UTF-8 flag as code page 437.
func zipName(h *zip.FileHeader) string {
	if h.Flags&zipFlagUTF8 != 0 || utf8.ValidString(h.Name) {
		return h.Name
	}
	name, err := charmap.CodePage437.NewDecoder().String(h.Name)
	if err != nil {
		return h.Name
	}
	return name
}
