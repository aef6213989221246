package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/islishude/unsplit/internal/compress"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatZip  Format = "zip"
	Format7z   Format = "7z"
	FormatRar  Format = "rar"
	FormatTar  Format = "tar"
)

func ParseFormat(v string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(v))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatZip, Format7z, FormatRar, FormatTar:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported archive format %q", v)
	}
}

var (
	zipLocalMagic = []byte{'P', 'K', 0x03, 0x04}
	zipEmptyMagic = []byte{'P', 'K', 0x05, 0x06}
	sevenZipMagic = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
	rarMagic      = []byte{'R', 'a', 'r', '!', 0x1a, 0x07}
	ustarMagic    = []byte("ustar")
)

const sniffLen = 512

// DetectFormat names the container starting with head, or FormatAuto when
// nothing matches. A compressed stream is assumed to hold a tar.
func DetectFormat(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, zipLocalMagic), bytes.HasPrefix(head, zipEmptyMagic):
		return FormatZip
	case bytes.HasPrefix(head, sevenZipMagic):
		return Format7z
	case bytes.HasPrefix(head, rarMagic):
		return FormatRar
	case compress.DetectByMagic(head) != compress.Auto:
		return FormatTar
	case len(head) >= 262 && bytes.Equal(head[257:262], ustarMagic):
		return FormatTar
	default:
		return FormatAuto
	}
}

// sniff reads the leading bytes of rs and rewinds it.
func sniff(rs io.ReadSeeker) ([]byte, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rs, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return head[:n], nil
}
