package archive

import (
	"bytes"
	"context"
	"errors"
	"hash"
	"hash/crc32"
	"io"
)

// ErrInvalidChunk is returned when a decoder reports an impossible read
// count. It is a failure of the sink side of the copy, not of the archive.
var ErrInvalidChunk = errors.New("decoder returned invalid chunk size")

// EntryReader decodes the entry that was under the cursor when it was
// opened. It must be closed before the cursor can advance.
type EntryReader struct {
	r        *Reader
	entry    *Entry
	rc       io.ReadCloser
	buf      []byte
	crc      hash.Hash32
	read     int64
	complete bool
	closed   bool
}

func newEntryReader(r *Reader, e *Entry, rc io.ReadCloser, chunk int) *EntryReader {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &EntryReader{
		r:     r,
		entry: e,
		rc:    rc,
		buf:   make([]byte, chunk),
		crc:   crc32.NewIEEE(),
	}
}

// Entry returns the metadata of the open entry.
func (er *EntryReader) Entry() *Entry { return er.entry }

// Decoded reports the number of bytes produced so far.
func (er *EntryReader) Decoded() int64 { return er.read }

// Complete reports whether the content was decoded to its end.
func (er *EntryReader) Complete() bool { return er.complete }

// CopyTo streams the decoded content to w one chunk at a time. When ctx is
// canceled it returns early with a nil error; the chunk in flight is
// either written in full or not at all. Write failures from w are returned
// unchanged, a short write as io.ErrShortWrite.
func (er *EntryReader) CopyTo(ctx context.Context, w io.Writer) (int64, error) {
	if er.closed {
		return 0, &Error{Op: "read", Name: er.entry.Name, Err: ErrEntryClosed}
	}
	var written int64
	size := er.entry.UncompressedSize
	for !er.complete {
		if ctx.Err() != nil {
			return written, nil
		}
		n, rerr := er.rc.Read(er.buf)
		if n < 0 || n > len(er.buf) {
			return written, ErrInvalidChunk
		}
		if n > 0 {
			if ctx.Err() != nil {
				return written, nil
			}
			if size >= 0 && er.read+int64(n) > size {
				return written, &Error{Op: "read", Name: er.entry.Name, Err: ErrSizeOverflow}
			}
			chunk := er.buf[:n]
			_, _ = er.crc.Write(chunk)
			er.read += int64(n)
			wn, werr := w.Write(chunk)
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
		}
		switch {
		case errors.Is(rerr, io.EOF):
			if size >= 0 && er.read < size {
				return written, &Error{Op: "read", Name: er.entry.Name, Err: io.ErrUnexpectedEOF}
			}
			er.complete = true
		case rerr != nil:
			return written, &Error{Op: "read", Name: er.entry.Name, Err: rerr}
		}
	}
	return written, nil
}

// ReadToBuffer collects the decoded content in memory. It is meant for
// small entries such as symlink targets.
func (er *EntryReader) ReadToBuffer(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := er.CopyTo(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadLink returns the target of a symlink entry: the header's link name
// when the format carries one, otherwise the entry content.
func (er *EntryReader) ReadLink(ctx context.Context) (string, error) {
	if er.entry.Linkname != "" {
		return er.entry.Linkname, nil
	}
	b, err := er.ReadToBuffer(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Close ends the decoding session. For an entry read to its end, the
// CRC-32 of the produced bytes is compared with the recorded one.
func (er *EntryReader) Close() error {
	if er.closed {
		return nil
	}
	er.closed = true
	if er.r.open == er {
		er.r.open = nil
	}
	cerr := er.rc.Close()
	if er.complete && er.entry.HasCRC && er.crc.Sum32() != er.entry.CRC32 {
		er.r.log.Warn().Str("entry", er.entry.Name).
			Uint32("want", er.entry.CRC32).Uint32("got", er.crc.Sum32()).
			Msg("checksum mismatch")
		return &Error{Op: "verify", Name: er.entry.Name, Err: ErrChecksum}
	}
	if cerr != nil {
		return &Error{Op: "close", Name: er.entry.Name, Err: cerr}
	}
	return nil
}
