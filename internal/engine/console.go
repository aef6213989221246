package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/islishude/unsplit/internal/cli"
)

// Console is a Collaborator that reports on a terminal and asks questions
// on it. "all" and "skip all" answers stick for the rest of the run.
type Console struct {
	in        *bufio.Reader
	out       io.Writer
	errOut    io.Writer
	verbose   bool
	overwrite cli.OverwritePolicy
	onError   cli.ErrorPolicy
}

func NewConsole(in io.Reader, out, errOut io.Writer, verbose bool, overwrite cli.OverwritePolicy, onError cli.ErrorPolicy) *Console {
	if overwrite == cli.OverwriteDefault {
		overwrite = cli.OverwriteAsk
	}
	if onError == cli.OnErrorDefault {
		onError = cli.OnErrorAbort
	}
	return &Console{
		in:        bufio.NewReader(in),
		out:       out,
		errOut:    errOut,
		verbose:   verbose,
		overwrite: overwrite,
		onError:   onError,
	}
}

func (c *Console) Progress(ev Event) {
	switch {
	case ev.Done && ev.Err != nil:
		_, _ = fmt.Fprintf(c.errOut, "unsplit: %s: %v\n", ev.Archive, ev.Err)
	case ev.Done && ev.Canceled:
		_, _ = fmt.Fprintf(c.errOut, "unsplit: %s: canceled\n", ev.Archive)
	case ev.Done:
	case ev.Skipped:
		_, _ = fmt.Fprintf(c.errOut, "unsplit: skipped %s\n", ev.Entry)
	case ev.Filtered:
	case c.verbose:
		_, _ = fmt.Fprintln(c.out, formatEntry(ev))
	}
}

func formatEntry(ev Event) string {
	pos := fmt.Sprintf("%d", ev.Index+1)
	if ev.Total >= 0 {
		pos = fmt.Sprintf("%d/%d", ev.Index+1, ev.Total)
	}
	size := ev.Size
	if size < 0 {
		size = ev.Written
	}
	if size > 0 {
		return fmt.Sprintf("[%s] %s (%s)", pos, ev.Entry, humanize.IBytes(uint64(size)))
	}
	return fmt.Sprintf("[%s] %s", pos, ev.Entry)
}

func (c *Console) Overwrite(path string, isDir bool) bool {
	switch c.overwrite {
	case cli.OverwriteAlways:
		return true
	case cli.OverwriteNever:
		return false
	}
	prompt := "unsplit: overwrite %s? [y]es/[n]o/[a]ll/[s]kip all: "
	if isDir {
		prompt = "unsplit: replace %s with a directory? [y]es/[n]o/[a]ll/[s]kip all: "
	}
	for {
		_, _ = fmt.Fprintf(c.errOut, prompt, path)
		answer, ok := c.readAnswer()
		if !ok {
			return false
		}
		switch answer {
		case "y", "yes":
			return true
		case "n", "no", "":
			return false
		case "a", "all":
			c.overwrite = cli.OverwriteAlways
			return true
		case "s", "skip", "skip all":
			c.overwrite = cli.OverwriteNever
			return false
		}
	}
}

func (c *Console) Failed(archive string, _ error) bool {
	switch c.onError {
	case cli.OnErrorContinue:
		return true
	case cli.OnErrorAbort:
		return false
	}
	_, _ = fmt.Fprintf(c.errOut, "unsplit: %s failed; continue with the next archive? [y/N]: ", archive)
	answer, ok := c.readAnswer()
	return ok && (answer == "y" || answer == "yes")
}

// readAnswer reads one line. It reports false once input is exhausted.
func (c *Console) readAnswer() (string, bool) {
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(line)), true
}
