package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/islishude/unsplit/internal/archive"
	"github.com/islishude/unsplit/internal/cli"
	"github.com/islishude/unsplit/internal/compress"
	"github.com/islishude/unsplit/internal/locator"
	"github.com/islishude/unsplit/internal/logger"
	"github.com/islishude/unsplit/internal/stream"
)

const (
	ExitSuccess = 0
	ExitWarning = 1
	ExitFatal   = 2
)

type PermissionPolicy struct {
	SameOwner bool
	SamePerms bool
}

// Runner processes the archives named on the command line one after
// another.
type Runner struct {
	fs     afero.Fs
	collab Collaborator
	stdout io.Writer
	stderr io.Writer
	log    zerolog.Logger
}

type RunResult struct {
	ExitCode int
	Err      error
}

// Summary totals a run over all archives.
type Summary struct {
	Archives  int
	Extracted int
	Skipped   int
	Errors    int
	Bytes     int64
	Canceled  bool
}

func New(fsys afero.Fs, collab Collaborator, stdout io.Writer, stderr io.Writer) *Runner {
	return &Runner{fs: fsys, collab: collab, stdout: stdout, stderr: stderr, log: logger.New("runner")}
}

func (r *Runner) Run(ctx context.Context, opts cli.Options) RunResult {
	switch opts.Mode {
	case cli.ModeExtract:
		sum, err := r.runExtract(ctx, opts)
		return classifyResult(sum, err)
	case cli.ModeList:
		err := r.runList(ctx, opts)
		return classifyResult(Summary{}, err)
	default:
		return RunResult{ExitCode: ExitFatal, Err: fmt.Errorf("unsupported mode %q", opts.Mode)}
	}
}

func classifyResult(sum Summary, err error) RunResult {
	if err != nil {
		return RunResult{ExitCode: ExitFatal, Err: err}
	}
	if sum.Canceled {
		return RunResult{ExitCode: ExitFatal, Err: context.Canceled}
	}
	if sum.Skipped > 0 {
		return RunResult{ExitCode: ExitWarning}
	}
	return RunResult{ExitCode: ExitSuccess}
}

// runExtract works through the queue on a background goroutine while the
// calling goroutine serves collaborator calls.
func (r *Runner) runExtract(ctx context.Context, opts cli.Options) (Summary, error) {
	policy := resolvePolicy(opts)
	output := opts.Chdir
	if output == "" {
		output = "."
	}
	bridge := NewBridge(r.collab)
	x, err := NewExtractor(r.fs, bridge, Options{
		Output:          output,
		SamePermissions: policy.SamePerms,
		SameOwner:       policy.SameOwner,
		Xattrs:          opts.Xattrs,
		UnsafeLinks:     opts.UnsafeLinks,
		StripComponents: opts.StripComponents,
		Include:         opts.Include,
		Exclude:         opts.Exclude,
		ExcludeFrom:     opts.ExcludeFrom,
	})
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	var firstErr error
	var g errgroup.Group
	g.Go(func() error {
		defer bridge.Close()
		for _, arg := range opts.Archives {
			if ctx.Err() != nil {
				sum.Canceled = true
				return nil
			}
			sess, parts, err := r.extractOne(ctx, x, bridge, arg, opts)
			sum.Archives++
			if sess != nil {
				sum.Extracted += sess.Extracted
				sum.Skipped += sess.Skipped
				sum.Bytes += sess.Bytes
			}
			if err != nil {
				sum.Errors++
				if firstErr == nil {
					firstErr = err
				}
				if !bridge.Failed(arg, err) {
					return nil
				}
				continue
			}
			if sess.State == StateCanceled {
				sum.Canceled = true
				return nil
			}
			if opts.RemoveParts {
				r.removeParts(sess.Archive, parts)
			}
		}
		return nil
	})
	bridge.Serve()
	if err := g.Wait(); err != nil {
		return sum, err
	}

	if sum.Errors > 0 || opts.Verbose {
		_, _ = fmt.Fprintf(r.stderr, "unsplit: extraction completed with %d error(s)\n", sum.Errors)
	}
	if opts.Verbose {
		_, _ = fmt.Fprintf(r.stderr, "unsplit: %d entries, %s written\n", sum.Extracted, humanize.IBytes(uint64(sum.Bytes)))
	}
	if firstErr != nil {
		return sum, fmt.Errorf("%d of %d archive(s) failed, first: %w", sum.Errors, sum.Archives, firstErr)
	}
	return sum, nil
}

// extractOne builds the stream and reader for one archive and extracts it.
// Failures before the first entry are reported through the collaborator the
// same way as failures during extraction.
func (r *Runner) extractOne(ctx context.Context, x *Extractor, collab Collaborator, arg string, opts cli.Options) (*Session, []string, error) {
	ar, closeFn, ref, err := r.open(arg, opts)
	if err != nil {
		collab.Progress(Event{Archive: arg, Done: true, Err: err})
		return nil, nil, err
	}
	defer closeFn()
	sess, err := x.Extract(ctx, ref.Name, ar)
	return sess, ref.Parts, err
}

func (r *Runner) open(arg string, opts cli.Options) (*archive.Reader, func(), locator.Ref, error) {
	ref, err := locator.Resolve(r.fs, arg)
	if err != nil {
		return nil, nil, ref, err
	}
	r.log.Debug().Str("archive", ref.Name).Strs("parts", ref.Parts).Msg("resolved parts")
	vs, err := stream.Open(r.fs, ref.Parts)
	if err != nil {
		return nil, nil, ref, err
	}
	format, err := archive.ParseFormat(opts.Format)
	if err != nil {
		_ = vs.Close()
		return nil, nil, ref, err
	}
	ar, err := archive.Open(vs, archive.Options{
		Format:      format,
		Compression: compress.FromString(string(opts.Compression)),
		ChunkSize:   opts.ChunkSize,
		Hint:        ref.Name,
	})
	if err != nil {
		_ = vs.Close()
		return nil, nil, ref, err
	}
	closeFn := func() {
		if err := ar.Close(); err != nil {
			r.log.Warn().Err(err).Str("archive", ref.Name).Msg("close archive")
		}
		if err := vs.Close(); err != nil {
			r.log.Warn().Err(err).Str("archive", ref.Name).Msg("close parts")
		}
	}
	return ar, closeFn, ref, nil
}

// removeParts deletes the part files of an archive that extracted cleanly.
func (r *Runner) removeParts(name string, parts []string) {
	for _, p := range parts {
		if err := r.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			_, _ = fmt.Fprintf(r.stderr, "unsplit: warning: remove %s: %v\n", p, err)
			continue
		}
		r.log.Info().Str("archive", name).Str("path", p).Msg("part removed")
	}
}

func (r *Runner) runList(ctx context.Context, opts cli.Options) error {
	for _, arg := range opts.Archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.listOne(ctx, arg, opts); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) listOne(ctx context.Context, arg string, opts cli.Options) error {
	ar, closeFn, _, err := r.open(arg, opts)
	if err != nil {
		return err
	}
	defer closeFn()
	for er, err := range ar.Entries() {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		e := er.Entry()
		if !opts.Verbose {
			_, _ = fmt.Fprintln(r.stdout, e.Name)
			continue
		}
		size := "-"
		if e.UncompressedSize >= 0 {
			size = humanize.IBytes(uint64(e.UncompressedSize))
		}
		line := fmt.Sprintf("%-7s %10s %s %s", e.Kind, size, e.Modified.Format("2006-01-02 15:04"), e.Name)
		if e.Linkname != "" {
			line += " -> " + e.Linkname
		}
		_, _ = fmt.Fprintln(r.stdout, line)
	}
	return nil
}

func resolvePolicy(opts cli.Options) PermissionPolicy {
	isRoot := os.Geteuid() == 0
	policy := PermissionPolicy{SameOwner: isRoot, SamePerms: isRoot}
	if opts.SameOwner != nil {
		policy.SameOwner = *opts.SameOwner
	}
	if opts.SamePermissions != nil {
		policy.SamePerms = *opts.SamePermissions
	}
	return policy
}
