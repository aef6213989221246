// Package testutil builds small archives in memory and splits them into
// numbered part files for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	gzip "github.com/klauspost/pgzip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// Modified is the timestamp stamped on fixture entries.
var Modified = time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

type Entry struct {
	Name string
	Body string
	// Mode selects the kind: fs.ModeDir, fs.ModeSymlink (Body is the
	// target) or a plain permission for regular files.
	Mode fs.FileMode
	// Method is the zip compression method; zero means deflate.
	Method uint16
	// PAX records added to tar headers.
	PAX map[string]string
	// Link makes a tar hard link to the named earlier entry.
	Link string
}

func File(name, body string) Entry { return Entry{Name: name, Body: body, Mode: 0o644} }
func Dir(name string) Entry        { return Entry{Name: name, Mode: fs.ModeDir | 0o755} }
func Symlink(name, target string) Entry {
	return Entry{Name: name, Body: target, Mode: fs.ModeSymlink | 0o777}
}

// Zip writes entries into a zip archive.
func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: Modified}
		if e.Method != 0 {
			hdr.Method = e.Method
		}
		if e.Mode.IsDir() {
			hdr.Name = dirName(e.Name)
			hdr.Method = zip.Store
		}
		hdr.SetMode(e.Mode)
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		if !e.Mode.IsDir() {
			_, err = w.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// TarGz writes entries into a gzip compressed tar stream.
func TarGz(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:       e.Name,
			Mode:       int64(e.Mode.Perm()),
			ModTime:    Modified,
			Typeflag:   tar.TypeReg,
			Size:       int64(len(e.Body)),
			PAXRecords: e.PAX,
		}
		if len(e.PAX) > 0 {
			hdr.Format = tar.FormatPAX
		}
		switch {
		case e.Link != "":
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = e.Link
			hdr.Size = 0
		case e.Mode.IsDir():
			hdr.Name = dirName(e.Name)
			hdr.Typeflag = tar.TypeDir
			hdr.Size = 0
		case e.Mode&fs.ModeSymlink != 0:
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Body
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

// Split writes data as numbered parts base.001, base.002, ... of at most
// partSize bytes under dir and returns their paths in order.
func Split(t testing.TB, fsys afero.Fs, dir, base string, data []byte, partSize int) []string {
	t.Helper()
	require.Positive(t, partSize)
	require.NoError(t, fsys.MkdirAll(dir, 0o755))
	var paths []string
	for i, off := 1, 0; off < len(data) || i == 1; i++ {
		end := min(off+partSize, len(data))
		p := path.Join(dir, fmt.Sprintf("%s.%03d", base, i))
		require.NoError(t, afero.WriteFile(fsys, p, data[off:end], 0o644))
		paths = append(paths, p)
		off = end
	}
	return paths
}

func dirName(name string) string {
	if name == "" || name[len(name)-1] == '/' {
		return name
	}
	return name + "/"
}
