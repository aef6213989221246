package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/islishude/unsplit/internal/archive"
	"github.com/islishude/unsplit/internal/testutil"
)

func skipWithoutSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
}

func memOutput(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/out", 0o755))
	return fsys
}

func TestExtractFileDirSymlink(t *testing.T) {
	skipWithoutSymlinks(t)
	osfs := afero.NewOsFs()
	in, out := t.TempDir(), t.TempDir()
	data := testutil.Zip(t,
		testutil.File("hello.txt", "hello, split world"),
		testutil.Dir("empty"),
		testutil.Symlink("link", "hello.txt"),
	)
	r := openSplit(t, osfs, in, data, 100)

	rec := &recorder{}
	x, err := NewExtractor(osfs, rec, Options{Output: out})
	require.NoError(t, err)
	sess, err := x.Extract(context.Background(), "fixture.zip", r)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, sess.State)
	assert.Equal(t, 3, sess.Extracted)
	assert.Zero(t, sess.Errors)
	assert.Equal(t, "hello.txt", sess.RootMarker)

	items, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	b, err := os.ReadFile(filepath.Join(out, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello, split world", string(b))

	fi, err := os.Lstat(filepath.Join(out, "empty"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	fi, err = os.Lstat(filepath.Join(out, "link"))
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink)
	target, err := os.Readlink(filepath.Join(out, "link"))
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", target)

	events := rec.entryEvents()
	require.Len(t, events, 3)
	assert.Equal(t, int64(len("hello, split world")), events[0].Written)
	assert.Equal(t, int64(len("hello.txt")), events[2].Written, "link target is content")
	done := rec.last()
	assert.True(t, done.Done)
	assert.False(t, done.Canceled)
	assert.NoError(t, done.Err)
}

func TestExtractCancelAfterFirstEntry(t *testing.T) {
	fsys := memOutput(t)
	var entries []testutil.Entry
	for i := range 5 {
		entries = append(entries, testutil.File(fmt.Sprintf("f%d.txt", i), fmt.Sprintf("content %d", i)))
	}
	r := openSplit(t, fsys, "/in", testutil.Zip(t, entries...), 64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{onProgress: func(ev Event) {
		if !ev.Done && ev.Index == 0 {
			cancel()
		}
	}}
	x, err := NewExtractor(fsys, rec, Options{Output: "/out"})
	require.NoError(t, err)
	sess, err := x.Extract(ctx, "fixture.zip", r)
	require.NoError(t, err)

	assert.Equal(t, StateCanceled, sess.State)
	assert.Equal(t, 1, sess.Extracted)
	ok, err := afero.Exists(fsys, "/out/f0.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	for i := 1; i < 5; i++ {
		ok, err := afero.Exists(fsys, fmt.Sprintf("/out/f%d.txt", i))
		require.NoError(t, err)
		assert.False(t, ok, "entry %d written after cancel", i)
	}
	assert.Len(t, rec.entryEvents(), 1)
	assert.True(t, rec.last().Done)
	assert.True(t, rec.last().Canceled)
}

func TestExtractOverwriteDeclined(t *testing.T) {
	fsys := memOutput(t)
	require.NoError(t, afero.WriteFile(fsys, "/out/b.txt", []byte("original"), 0o644))
	r := openSplit(t, fsys, "/in", testutil.Zip(t,
		testutil.File("a.txt", "A"),
		testutil.File("b.txt", "B"),
		testutil.File("c.txt", "C"),
	), 50)

	rec := &recorder{answer: false}
	x, err := NewExtractor(fsys, rec, Options{Output: "/out"})
	require.NoError(t, err)
	sess, err := x.Extract(context.Background(), "fixture.zip", r)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.FromSlash("/out/b.txt")}, rec.overwrites)
	b, err := afero.ReadFile(fsys, "/out/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "original", string(b))
	for name, want := range map[string]string{"/out/a.txt": "A", "/out/c.txt": "C"} {
		b, err := afero.ReadFile(fsys, name)
		require.NoError(t, err)
		assert.Equal(t, want, string(b))
	}
	assert.Equal(t, 1, sess.Skipped)
	assert.Equal(t, 2, sess.Extracted)
	assert.Equal(t, StateCompleted, sess.State)

	events := rec.entryEvents()
	require.Len(t, events, 3)
	assert.True(t, events[1].Skipped)
	assert.False(t, events[0].Skipped)
}

func TestExtractOverwriteAccepted(t *testing.T) {
	fsys := memOutput(t)
	require.NoError(t, afero.WriteFile(fsys, "/out/a.txt", []byte("a much longer original"), 0o644))
	r := openSplit(t, fsys, "/in", testutil.Zip(t, testutil.File("a.txt", "new")), 30)

	rec := &recorder{answer: true}
	x, err := NewExtractor(fsys, rec, Options{Output: "/out"})
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "fixture.zip", r)
	require.NoError(t, err)

	b, err := afero.ReadFile(fsys, "/out/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}

func TestExtractExistingDirectoryIsNotAConflict(t *testing.T) {
	fsys := memOutput(t)
	require.NoError(t, fsys.MkdirAll("/out/docs", 0o755))
	r := openSplit(t, fsys, "/in", testutil.Zip(t, testutil.Dir("docs"), testutil.File("docs/x", "x")), 40)

	rec := &recorder{}
	x, err := NewExtractor(fsys, rec, Options{Output: "/out"})
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "fixture.zip", r)
	require.NoError(t, err)
	assert.Empty(t, rec.overwrites)
}

func TestExtractOutputMissing(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r := openSplit(t, fsys, "/in", testutil.Zip(t, testutil.File("a", "a")), 40)
	require.NoError(t, afero.WriteFile(fsys, "/file", []byte("x"), 0o644))

	for _, output := range []string{"/missing", "/file"} {
		rec := &recorder{}
		x, err := NewExtractor(fsys, rec, Options{Output: output})
		require.NoError(t, err)
		sess, err := x.Extract(context.Background(), "fixture.zip", r)
		require.ErrorIs(t, err, ErrNotDirectory)
		var xerr *Error
		require.True(t, errors.As(err, &xerr))
		assert.Equal(t, StateFailed, sess.State)
		assert.Empty(t, rec.entryEvents())
		assert.True(t, rec.last().Done)
		assert.ErrorIs(t, rec.last().Err, ErrNotDirectory)
	}
	assert.Equal(t, 0, r.Index(), "cursor untouched")
}

func TestExtractRefusesEscapingNames(t *testing.T) {
	fsys := memOutput(t)
	r := openSplit(t, fsys, "/in", testutil.TarGz(t,
		testutil.File("ok.txt", "fine"),
		testutil.File("../evil.txt", "bad"),
		testutil.File("after.txt", "never"),
	), 64)

	rec := &recorder{}
	x, err := NewExtractor(fsys, rec, Options{Output: "/out"})
	require.NoError(t, err)
	sess, err := x.Extract(context.Background(), "fixture.tar.gz", r)
	require.ErrorIs(t, err, ErrUnsafePath)
	var xerr *Error
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, StateFailed, sess.State)
	assert.Equal(t, 1, sess.Errors)

	ok, _ := afero.Exists(fsys, "/evil.txt")
	assert.False(t, ok)
	ok, _ = afero.Exists(fsys, "/out/ok.txt")
	assert.True(t, ok, "output written before the failure stays")
	ok, _ = afero.Exists(fsys, "/out/after.txt")
	assert.False(t, ok)
}

func TestExtractSymlinkUnsupported(t *testing.T) {
	fsys := memOutput(t)
	r := openSplit(t, fsys, "/in", testutil.Zip(t, testutil.Symlink("link", "target")), 40)

	x, err := NewExtractor(fsys, &recorder{}, Options{Output: "/out"})
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "fixture.zip", r)
	require.ErrorIs(t, err, ErrSymlinkUnsupported)
	ok, _ := afero.Exists(fsys, "/out/link")
	assert.False(t, ok, "no regular file stands in for the link")
}

func TestExtractUnsafeSymlinkTarget(t *testing.T) {
	skipWithoutSymlinks(t)
	osfs := afero.NewOsFs()
	data := testutil.Zip(t, testutil.Symlink("link", "../../outside"))

	x, err := NewExtractor(osfs, &recorder{}, Options{Output: t.TempDir()})
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "fixture.zip", openSplit(t, osfs, t.TempDir(), data, 40))
	assert.ErrorIs(t, err, ErrUnsafePath)

	out := t.TempDir()
	x, err = NewExtractor(osfs, &recorder{}, Options{Output: out, UnsafeLinks: true})
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "fixture.zip", openSplit(t, osfs, t.TempDir(), data, 40))
	require.NoError(t, err)
	target, err := os.Readlink(filepath.Join(out, "link"))
	require.NoError(t, err)
	assert.Equal(t, "../../outside", target)
}

func TestExtractAbsoluteSymlinkThenWriteThrough(t *testing.T) {
	skipWithoutSymlinks(t)
	osfs := afero.NewOsFs()
	victim := t.TempDir()
	data := testutil.Zip(t,
		testutil.Symlink("d", victim),
		testutil.File("d/pwned.txt", "escaped"),
	)

	out := t.TempDir()
	x, err := NewExtractor(osfs, &recorder{}, Options{Output: out})
	require.NoError(t, err)
	sess, err := x.Extract(context.Background(), "fixture.zip", openSplit(t, osfs, t.TempDir(), data, 40))
	require.ErrorIs(t, err, ErrUnsafePath)
	assert.Equal(t, StateFailed, sess.State)
	_, err = os.Lstat(filepath.Join(out, "d"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, filepath.Join(victim, "pwned.txt"))

	// with unsafe links the link is made, but entries still cannot be
	// written through it
	out = t.TempDir()
	x, err = NewExtractor(osfs, &recorder{}, Options{Output: out, UnsafeLinks: true})
	require.NoError(t, err)
	sess, err = x.Extract(context.Background(), "fixture.zip", openSplit(t, osfs, t.TempDir(), data, 40))
	require.ErrorIs(t, err, ErrUnsafePath)
	assert.Equal(t, 1, sess.Extracted)
	assert.NoFileExists(t, filepath.Join(victim, "pwned.txt"))
}

func TestExtractChainedSymlinkEscape(t *testing.T) {
	skipWithoutSymlinks(t)
	osfs := afero.NewOsFs()
	parent := t.TempDir()
	out := filepath.Join(parent, "out")
	require.NoError(t, os.Mkdir(out, 0o755))
	data := testutil.Zip(t,
		testutil.Symlink("x", "."),
		testutil.Symlink("y", "x/.."),
		testutil.File("y/pwned.txt", "escaped"),
	)

	x, err := NewExtractor(osfs, &recorder{}, Options{Output: out})
	require.NoError(t, err)
	sess, err := x.Extract(context.Background(), "fixture.zip", openSplit(t, osfs, t.TempDir(), data, 40))
	require.ErrorIs(t, err, ErrUnsafePath)
	assert.Equal(t, 1, sess.Extracted, "only x is created")
	_, err = os.Lstat(filepath.Join(out, "y"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, filepath.Join(parent, "pwned.txt"))
}

func TestExtractTarWithSelection(t *testing.T) {
	fsys := memOutput(t)
	require.NoError(t, afero.WriteFile(fsys, "/excludes", []byte("# comment\n*.log\n"), 0o644))
	r := openSplit(t, fsys, "/in", testutil.TarGz(t,
		testutil.Dir("pkg"),
		testutil.File("pkg/keep.txt", "keep"),
		testutil.File("pkg/debug.log", "drop"),
		testutil.File("pkg/tmp/scratch", "drop"),
	), 33)

	rec := &recorder{}
	x, err := NewExtractor(fsys, rec, Options{
		Output:          "/out",
		StripComponents: 1,
		Exclude:         []string{"pkg/tmp"},
		ExcludeFrom:     []string{"/excludes"},
	})
	require.NoError(t, err)
	sess, err := x.Extract(context.Background(), "fixture.tar.gz", r)
	require.NoError(t, err)

	b, err := afero.ReadFile(fsys, "/out/keep.txt")
	require.NoError(t, err)
	assert.Equal(t, "keep", string(b))
	for _, p := range []string{"/out/debug.log", "/out/tmp", "/out/pkg"} {
		ok, _ := afero.Exists(fsys, p)
		assert.False(t, ok, p)
	}
	assert.Equal(t, 1, sess.Extracted)
	assert.Equal(t, 3, sess.Filtered)
	assert.Len(t, rec.entryEvents(), 4, "filtered entries still report progress")
}

func TestExtractTarHardlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hard links")
	}
	osfs := afero.NewOsFs()
	out := t.TempDir()
	r := openSplit(t, osfs, t.TempDir(), testutil.TarGz(t,
		testutil.File("orig.txt", "shared"),
		testutil.Entry{Name: "copy.txt", Link: "orig.txt"},
	), 50)

	x, err := NewExtractor(osfs, &recorder{}, Options{Output: out})
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "fixture.tar.gz", r)
	require.NoError(t, err)

	a, err := os.Stat(filepath.Join(out, "orig.txt"))
	require.NoError(t, err)
	b, err := os.Stat(filepath.Join(out, "copy.txt"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(a, b))
}

func TestExtractTarHardlinkStripped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hard links")
	}
	osfs := afero.NewOsFs()
	out := t.TempDir()
	r := openSplit(t, osfs, t.TempDir(), testutil.TarGz(t,
		testutil.File("pkg/orig.txt", "shared"),
		testutil.Entry{Name: "pkg/copy.txt", Link: "pkg/orig.txt"},
	), 50)

	x, err := NewExtractor(osfs, &recorder{}, Options{Output: out, StripComponents: 1})
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "fixture.tar.gz", r)
	require.NoError(t, err)

	a, err := os.Stat(filepath.Join(out, "orig.txt"))
	require.NoError(t, err)
	b, err := os.Stat(filepath.Join(out, "copy.txt"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(a, b))
}

func TestExtractHardlinkToExcludedEntry(t *testing.T) {
	fsys := memOutput(t)
	r := openSplit(t, fsys, "/in", testutil.TarGz(t,
		testutil.File("orig.log", "shared"),
		testutil.Entry{Name: "copy.txt", Link: "orig.log"},
		testutil.File("after.txt", "still extracted"),
	), 50)

	rec := &recorder{}
	x, err := NewExtractor(fsys, rec, Options{Output: "/out", Exclude: []string{"*.log"}})
	require.NoError(t, err)
	sess, err := x.Extract(context.Background(), "fixture.tar.gz", r)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, sess.State)
	assert.Equal(t, 1, sess.Filtered)
	assert.Equal(t, 1, sess.Skipped)
	assert.Equal(t, 1, sess.Extracted)
	ok, _ := afero.Exists(fsys, "/out/copy.txt")
	assert.False(t, ok)
	b, err := afero.ReadFile(fsys, "/out/after.txt")
	require.NoError(t, err)
	assert.Equal(t, "still extracted", string(b))
	events := rec.entryEvents()
	require.Len(t, events, 3)
	assert.True(t, events[1].Skipped)
}

func TestExtractAppliesPermissionsAndTimes(t *testing.T) {
	fsys := memOutput(t)
	r := openSplit(t, fsys, "/in", testutil.Zip(t, testutil.Entry{Name: "run.sh", Body: "#!/bin/sh", Mode: 0o751}), 40)

	x, err := NewExtractor(fsys, &recorder{}, Options{Output: "/out", SamePermissions: true})
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "fixture.zip", r)
	require.NoError(t, err)

	fi, err := fsys.Stat("/out/run.sh")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o751), fi.Mode().Perm())
	assert.True(t, fi.ModTime().Equal(testutil.Modified))
}

func TestExtractChecksumFailureIsArchiveError(t *testing.T) {
	fsys := memOutput(t)
	data := testutil.Zip(t, testutil.Entry{Name: "a.txt", Body: "0123456789abcdef", Mode: 0o644, Method: 0})
	// corrupt the stored CRC in the local header and central directory
	flipCRC(data)
	r := openSplit(t, fsys, "/in", data, 25)

	x, err := NewExtractor(fsys, &recorder{}, Options{Output: "/out"})
	require.NoError(t, err)
	sess, err := x.Extract(context.Background(), "fixture.zip", r)
	require.Error(t, err)
	var aerr *archive.Error
	assert.True(t, errors.As(err, &aerr))
	assert.Equal(t, StateFailed, sess.State)
}

// flipCRC alters the CRC-32 field of every zip header in data.
func flipCRC(data []byte) {
	for i := 0; i+20 <= len(data); i++ {
		switch {
		case data[i] == 'P' && data[i+1] == 'K' && data[i+2] == 3 && data[i+3] == 4:
			data[i+14] ^= 0xff
		case data[i] == 'P' && data[i+1] == 'K' && data[i+2] == 1 && data[i+3] == 2:
			data[i+16] ^= 0xff
		}
	}
}

func TestExtractRejectsConcurrentUse(t *testing.T) {
	fsys := memOutput(t)
	r := openSplit(t, fsys, "/in", testutil.Zip(t, testutil.File("a", "a")), 40)

	var x *Extractor
	var innerErr error
	rec := &recorder{onProgress: func(ev Event) {
		if !ev.Done {
			_, innerErr = x.Extract(context.Background(), "again", r)
		}
	}}
	x, err := NewExtractor(fsys, rec, Options{Output: "/out"})
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "fixture.zip", r)
	require.NoError(t, err)
	assert.Error(t, innerErr)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "iterating", StateIterating.String())
	assert.Equal(t, "canceled", StateCanceled.String())
	assert.Equal(t, "state(9)", State(9).String())
}
