package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/islishude/unsplit/internal/archive"
	"github.com/islishude/unsplit/internal/logger"
	"github.com/islishude/unsplit/internal/storage/local"
)

type State uint8

const (
	StateIdle State = iota
	StateIterating
	StateCompleted
	StateCanceled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIterating:
		return "iterating"
	case StateCompleted:
		return "completed"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type Options struct {
	// Output must be an existing directory.
	Output          string
	SamePermissions bool
	SameOwner       bool
	Xattrs          bool
	UnsafeLinks     bool
	StripComponents int
	Include         []string
	Exclude         []string
	ExcludeFrom     []string
}

// Session records the extraction of one archive.
type Session struct {
	Archive string
	Output  string
	// RootMarker is the name of the first extracted entry.
	RootMarker string
	State      State
	Extracted  int
	Skipped    int
	Filtered   int
	Errors     int
	Bytes      int64
}

// Extractor materializes the entries of one archive at a time under an
// output directory.
type Extractor struct {
	mu     sync.Mutex
	fs     afero.Fs
	collab Collaborator
	opts   Options
	sel    *selector
	log    zerolog.Logger
}

func NewExtractor(fsys afero.Fs, collab Collaborator, opts Options) (*Extractor, error) {
	sel, err := newSelector(fsys, opts.StripComponents, opts.Include, opts.Exclude, opts.ExcludeFrom)
	if err != nil {
		return nil, fmt.Errorf("load exclude patterns: %w", err)
	}
	if opts.Output == "" {
		opts.Output = "."
	}
	return &Extractor{fs: fsys, collab: collab, opts: opts, sel: sel, log: logger.New("engine")}, nil
}

// Extract walks r from its current entry to the end. It stops at the first
// error, leaving written output in place, and when ctx is canceled. The
// collaborator sees a progress event per entry and a final Done event.
func (x *Extractor) Extract(ctx context.Context, name string, r *archive.Reader) (*Session, error) {
	if !x.mu.TryLock() {
		return nil, errors.New("an extraction is already running")
	}
	defer x.mu.Unlock()

	sess := &Session{Archive: name, Output: x.opts.Output, State: StateIdle}
	if err := x.checkOutput(); err != nil {
		return x.finish(sess, err)
	}
	sink := local.New(x.fs, x.opts.Output)
	sess.State = StateIterating
	x.log.Info().Str("archive", name).Str("output", x.opts.Output).Msg("extraction started")

	for !r.AtEnd() {
		if ctx.Err() != nil {
			sess.State = StateCanceled
			break
		}
		if err := x.step(ctx, sess, sink, r); err != nil {
			return x.finish(sess, err)
		}
		if err := r.Advance(); err != nil {
			if errors.Is(err, archive.ErrEndOfList) {
				break
			}
			return x.finish(sess, err)
		}
	}
	if sess.State == StateIterating {
		sess.State = StateCompleted
		if ctx.Err() != nil {
			sess.State = StateCanceled
		}
	}
	return x.finish(sess, nil)
}

func (x *Extractor) checkOutput() error {
	fi, err := x.fs.Stat(x.opts.Output)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: "open", Path: x.opts.Output, Err: err}
	}
	if err != nil || !fi.IsDir() {
		return &Error{Op: "open", Path: x.opts.Output, Err: ErrNotDirectory}
	}
	return nil
}

func (x *Extractor) finish(sess *Session, err error) (*Session, error) {
	if err != nil {
		sess.State = StateFailed
		sess.Errors++
		x.log.Error().Err(err).Str("archive", sess.Archive).Msg("extraction failed")
	} else {
		x.log.Info().Str("archive", sess.Archive).Stringer("state", sess.State).
			Int("extracted", sess.Extracted).Int("skipped", sess.Skipped).Msg("extraction finished")
	}
	x.closeSession(sess)
	x.collab.Progress(Event{
		Archive:  sess.Archive,
		Done:     true,
		Canceled: sess.State == StateCanceled,
		Err:      err,
	})
	return sess, err
}

// closeSession runs when an archive ends for any reason. Output is never
// rolled back; the root marker only names what was started.
func (x *Extractor) closeSession(sess *Session) {
	x.log.Debug().Str("archive", sess.Archive).Str("root", sess.RootMarker).
		Stringer("state", sess.State).Msg("session closed")
}

func (x *Extractor) step(ctx context.Context, sess *Session, sink *local.Sink, r *archive.Reader) error {
	er, err := r.OpenEntry()
	if err != nil {
		return err
	}
	ev := Event{
		Archive: sess.Archive,
		Entry:   er.Entry().Name,
		Kind:    er.Entry().Kind,
		Size:    er.Entry().UncompressedSize,
		Index:   r.Index(),
		Total:   r.Len(),
	}
	err = x.entry(ctx, sess, sink, er, &ev)
	ev.Written = er.Decoded()
	if cerr := er.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	x.collab.Progress(ev)
	return nil
}

func (x *Extractor) entry(ctx context.Context, sess *Session, sink *local.Sink, er *archive.EntryReader, ev *Event) error {
	e := er.Entry()
	name, ok := x.sel.name(e.Name)
	if !ok {
		sess.Filtered++
		ev.Filtered = true
		return nil
	}
	target, err := sink.Resolve(name)
	if err != nil {
		return &Error{Op: "resolve", Path: e.Name, Err: err}
	}
	if sess.RootMarker == "" {
		sess.RootMarker = e.Name
	}
	if target == sink.Root() {
		return nil
	}
	parent := filepath.Dir(target)
	if err := sink.MkdirAll(parent, 0o755); err != nil {
		return &Error{Op: "mkdir", Path: parent, Err: err}
	}

	fi, exists, err := sink.Exists(target)
	if err != nil {
		return &Error{Op: "stat", Path: target, Err: err}
	}
	replace := exists && !fi.IsDir()
	if replace && !x.collab.Overwrite(target, e.IsDir()) {
		x.log.Debug().Str("path", target).Msg("overwrite declined")
		sess.Skipped++
		ev.Skipped = true
		return nil
	}

	x.log.Debug().Str("entry", e.Name).Stringer("kind", e.Kind).Str("path", target).Msg("extracting")
	switch e.Kind {
	case archive.KindDir:
		err = x.dir(sink, target, e, replace)
	case archive.KindSymlink:
		err = x.symlink(ctx, sink, er, target)
	case archive.KindFile:
		var n int64
		n, err = x.file(ctx, sink, er, target, e)
		sess.Bytes += n
	case archive.KindLink:
		var made bool
		made, err = x.hardlink(sink, target, e)
		if err == nil && !made {
			sess.Skipped++
			ev.Skipped = true
			return nil
		}
	default:
		x.log.Warn().Str("entry", e.Name).Msg("skipping unsupported entry type")
		sess.Skipped++
		ev.Skipped = true
		return nil
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		// partially written; metadata is not applied
		return nil
	}
	x.applyMetadata(sink, target, e)
	sess.Extracted++
	return nil
}

func (x *Extractor) dir(sink *local.Sink, target string, e *archive.Entry, replace bool) error {
	if replace {
		if err := sink.Remove(target); err != nil {
			return &Error{Op: "remove", Path: target, Err: err}
		}
	}
	if err := sink.MkdirAll(target, x.mode(e)); err != nil {
		return &Error{Op: "mkdir", Path: target, Err: err}
	}
	return nil
}

func (x *Extractor) file(ctx context.Context, sink *local.Sink, er *archive.EntryReader, target string, e *archive.Entry) (int64, error) {
	f, err := sink.Create(target, x.mode(e))
	if err != nil {
		return 0, &Error{Op: "create", Path: target, Err: err}
	}
	n, err := er.CopyTo(ctx, f)
	cerr := f.Close()
	if err != nil {
		return n, copyError(target, err)
	}
	if cerr != nil {
		return n, &Error{Op: "close", Path: target, Err: cerr}
	}
	return n, nil
}

func (x *Extractor) symlink(ctx context.Context, sink *local.Sink, er *archive.EntryReader, target string) error {
	link, err := er.ReadLink(ctx)
	if err != nil {
		return copyError(target, err)
	}
	if ctx.Err() != nil {
		return nil
	}
	if !x.opts.UnsafeLinks {
		if err := sink.CheckLinkTarget(target, link); err != nil {
			return &Error{Op: "symlink", Path: target, Err: err}
		}
	}
	if err := sink.Symlink(link, target); err != nil {
		return &Error{Op: "symlink", Path: target, Err: err}
	}
	return nil
}

// hardlink links target to an earlier entry. It reports false, without
// error, when that entry is not on disk because it was filtered, stripped
// away or skipped.
func (x *Extractor) hardlink(sink *local.Sink, target string, e *archive.Entry) (bool, error) {
	name, ok := x.sel.linkName(e.Linkname)
	if !ok {
		x.log.Warn().Str("path", target).Str("link", e.Linkname).Msg("hard link target stripped away")
		return false, nil
	}
	existing, err := sink.Resolve(name)
	if err != nil {
		return false, &Error{Op: "link", Path: target, Err: err}
	}
	if _, found, err := sink.Exists(existing); err != nil {
		return false, &Error{Op: "link", Path: target, Err: err}
	} else if !found {
		x.log.Warn().Str("path", target).Str("link", e.Linkname).Msg("hard link target was not extracted")
		return false, nil
	}
	if err := sink.Link(existing, target); err != nil {
		return false, &Error{Op: "link", Path: target, Err: err}
	}
	return true, nil
}

func (x *Extractor) mode(e *archive.Entry) fs.FileMode {
	m := e.Mode.Perm()
	if m == 0 {
		m = 0o644
		if e.IsDir() {
			m = 0o755
		}
	}
	if !x.opts.SamePermissions {
		m &^= currentUmask()
	}
	return m
}

func (x *Extractor) applyMetadata(sink *local.Sink, target string, e *archive.Entry) {
	if x.opts.SameOwner && e.HasOwner {
		_ = sink.Lchown(target, e.Uid, e.Gid)
	}
	if e.Kind == archive.KindSymlink {
		return
	}
	if x.opts.SamePermissions && e.Mode.Perm() != 0 {
		_ = sink.Chmod(target, e.Mode.Perm())
	}
	if !e.Modified.IsZero() {
		_ = sink.Chtimes(target, e.Modified)
	}
	if x.opts.Xattrs {
		if failed := sink.SetXattrs(target, e.Xattrs); failed > 0 {
			x.log.Warn().Str("path", target).Int("failed", failed).Msg("some extended attributes were not applied")
		}
	}
}

// copyError keeps decode failures as archive errors and turns everything
// else, sink failures and short writes, into extraction errors.
func copyError(target string, err error) error {
	var aerr *archive.Error
	if errors.As(err, &aerr) {
		return err
	}
	return &Error{Op: "write", Path: target, Err: err}
}
