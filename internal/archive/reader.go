// Package archive walks the entries of a container read from a
// stream.VirtualStream. The cursor only moves forward; restarting means
// opening a new Reader.
package archive

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/rs/zerolog"

	"github.com/islishude/unsplit/internal/compress"
	"github.com/islishude/unsplit/internal/logger"
)

// DefaultChunkSize is the decode buffer used by EntryReader.CopyTo.
const DefaultChunkSize = 32 << 10

// Source is the byte stream an archive is read from. *stream.VirtualStream
// satisfies it; reads may come back short.
type Source interface {
	io.ReadSeeker
	Size() int64
}

type Options struct {
	// Format forces a container format. FormatAuto sniffs the stream.
	Format Format
	// Compression forces the compression layer of a tar stream.
	Compression compress.Type
	ChunkSize   int
	// Hint is a file name used for extension based detection and messages.
	Hint string
}

// Reader is a forward-only cursor over the entries of one archive. It
// borrows its Source and owns the codec.
type Reader struct {
	src    Source
	c      codec
	format Format
	name   string
	count  int
	index  int
	cur    *Entry
	atEnd  bool
	open   *EntryReader
	chunk  int
	log    zerolog.Logger
}

// Open recognizes the container in src and positions the cursor on the
// first entry without opening it.
func Open(src Source, opts Options) (*Reader, error) {
	r := &Reader{
		src:   src,
		name:  opts.Hint,
		index: -1,
		chunk: opts.ChunkSize,
		log:   logger.New("archive"),
	}
	if r.chunk <= 0 {
		r.chunk = DefaultChunkSize
	}
	format, err := r.detect(opts)
	if err != nil {
		return nil, &Error{Op: "open", Name: r.name, Err: err}
	}
	r.format = format

	switch format {
	case FormatZip:
		r.c, err = newZipCodec(&seekReaderAt{rs: src, size: src.Size()}, src.Size())
	case Format7z:
		r.c, err = newSevenZipCodec(&seekReaderAt{rs: src, size: src.Size()}, src.Size())
	case FormatRar:
		r.c, err = newRarCodec(src)
	case FormatTar:
		r.c, err = newTarCodec(src, opts.Compression, opts.Hint)
	default:
		err = ErrUnknownFormat
	}
	if err != nil {
		return nil, &Error{Op: "open", Name: r.name, Err: err}
	}
	r.count = r.c.count()
	r.log.Debug().Str("archive", r.name).Str("format", string(format)).Int("entries", r.count).Msg("archive opened")

	if err := r.step(); err != nil {
		_ = r.c.close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) detect(opts Options) (Format, error) {
	if opts.Format != "" && opts.Format != FormatAuto {
		return opts.Format, nil
	}
	if opts.Compression != compress.Auto && opts.Compression != "" {
		return FormatTar, nil
	}
	head, err := sniff(r.src)
	if err != nil {
		return "", err
	}
	if f := DetectFormat(head); f != FormatAuto {
		return f, nil
	}
	return "", ErrUnknownFormat
}

func (r *Reader) step() error {
	e, err := r.c.next()
	if errors.Is(err, io.EOF) {
		r.cur = nil
		r.atEnd = true
		return nil
	}
	if err != nil {
		return &Error{Op: "next", Name: r.name, Err: err}
	}
	r.cur = e
	r.index++
	return nil
}

// Format is the detected or forced container format.
func (r *Reader) Format() Format { return r.format }

// Len is the number of entries, or -1 for formats that only learn it by
// reading to the end.
func (r *Reader) Len() int { return r.count }

// Index is the zero-based position of the cursor.
func (r *Reader) Index() int { return r.index }

// AtEnd reports whether the cursor is past the last entry.
func (r *Reader) AtEnd() bool { return r.atEnd }

// Advance moves to the next entry. It returns ErrEndOfList once there is
// none, and ErrEntryOpen while the current entry is still open.
func (r *Reader) Advance() error {
	if r.open != nil {
		return ErrEntryOpen
	}
	if r.atEnd {
		return ErrEndOfList
	}
	if err := r.step(); err != nil {
		return err
	}
	if r.atEnd {
		return ErrEndOfList
	}
	return nil
}

// OpenEntry starts decoding the entry under the cursor. Its metadata is
// available from the returned reader.
func (r *Reader) OpenEntry() (*EntryReader, error) {
	if r.atEnd {
		return nil, ErrEndOfList
	}
	if r.open != nil {
		return nil, ErrEntryOpen
	}
	rc, err := r.c.open()
	if err != nil {
		return nil, &Error{Op: "open", Name: r.cur.Name, Err: err}
	}
	r.open = newEntryReader(r, r.cur, rc, r.chunk)
	return r.open, nil
}

// Entries opens each remaining entry in turn. The yielded reader is closed
// before the cursor advances; iteration stops at the first error.
func (r *Reader) Entries() iter.Seq2[*EntryReader, error] {
	return func(yield func(*EntryReader, error) bool) {
		for !r.atEnd {
			er, err := r.OpenEntry()
			if err != nil {
				yield(nil, err)
				return
			}
			cont := yield(er, nil)
			if err := er.Close(); err != nil {
				if cont {
					yield(nil, err)
				}
				return
			}
			if !cont {
				return
			}
			if err := r.Advance(); err != nil {
				if !errors.Is(err, ErrEndOfList) {
					yield(nil, err)
				}
				return
			}
		}
	}
}

// Close releases the codec. The Source is left open.
func (r *Reader) Close() error {
	if r.open != nil {
		_ = r.open.Close()
	}
	if err := r.c.close(); err != nil {
		return &Error{Op: "close", Name: r.name, Err: err}
	}
	return nil
}

func (r *Reader) String() string {
	return fmt.Sprintf("%s (%s)", r.name, r.format)
}
