// Package locator turns an ARCHIVE argument into the ordered list of part
// files that make up the archive.
package locator

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

type Kind string

const (
	// KindList is an explicit part list joined with os.PathListSeparator.
	KindList Kind = "list"
	// KindGlob is a pattern whose matches are ordered by part number.
	KindGlob Kind = "glob"
	// KindNumbered is a first part whose numbered siblings are discovered.
	KindNumbered Kind = "numbered"
	KindSingle   Kind = "single"
)

type Ref struct {
	Kind Kind
	Raw  string
	// Name identifies the archive in messages and drives extension based
	// compression detection; part suffixes are removed.
	Name  string
	Parts []string
}

var ErrNoParts = errors.New("no part files found")

type scheme struct {
	re *regexp.Regexp
	// word precedes the number in part names
	word string
}

// numbered part naming schemes, tried in order
var schemes = []scheme{
	{regexp.MustCompile(`^(.+)\.part(\d+)(\.rar)$`), "part"},
	{regexp.MustCompile(`^(.+)\.part(\d+)()$`), "part"},
	{regexp.MustCompile(`^(.+)\.(\d{3,})()$`), ""},
}

func Resolve(fsys afero.Fs, arg string) (Ref, error) {
	if strings.ContainsRune(arg, os.PathListSeparator) {
		return resolveList(fsys, arg)
	}
	if strings.ContainsAny(arg, "*?[") {
		return resolveGlob(fsys, arg)
	}
	if ref, ok, err := resolveNumbered(fsys, arg); ok || err != nil {
		return ref, err
	}
	if err := checkFile(fsys, arg); err != nil {
		return Ref{}, err
	}
	return Ref{Kind: KindSingle, Raw: arg, Name: arg, Parts: []string{arg}}, nil
}

func resolveList(fsys afero.Fs, arg string) (Ref, error) {
	var parts []string
	for p := range strings.SplitSeq(arg, string(os.PathListSeparator)) {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if err := checkFile(fsys, p); err != nil {
			return Ref{}, err
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return Ref{}, fmt.Errorf("%w in %q", ErrNoParts, arg)
	}
	return Ref{Kind: KindList, Raw: arg, Name: baseName(parts[0]), Parts: parts}, nil
}

func resolveGlob(fsys afero.Fs, arg string) (Ref, error) {
	matches, err := afero.Glob(fsys, arg)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid pattern %q: %w", arg, err)
	}
	var parts []string
	for _, m := range matches {
		if fi, err := fsys.Stat(m); err == nil && !fi.IsDir() {
			parts = append(parts, m)
		}
	}
	if len(parts) == 0 {
		return Ref{}, fmt.Errorf("%w matching %q", ErrNoParts, arg)
	}
	slices.SortStableFunc(parts, comparePartNames)
	return Ref{Kind: KindGlob, Raw: arg, Name: baseName(parts[0]), Parts: parts}, nil
}

// resolveNumbered collects the run of consecutively numbered parts that
// arg belongs to, from the lowest number present until one is missing.
func resolveNumbered(fsys afero.Fs, arg string) (Ref, bool, error) {
	for _, sc := range schemes {
		m := sc.re.FindStringSubmatch(arg)
		if m == nil {
			continue
		}
		base, digits, ext := m[1], m[2], m[3]
		first, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if err := checkFile(fsys, arg); err != nil {
			return Ref{}, true, err
		}
		// part returns the existing name of part n, trying the width of
		// arg first and then no padding (name.part9 before name.part10).
		part := func(n int) (string, bool) {
			for _, name := range []string{
				fmt.Sprintf("%s.%s%0*d%s", base, sc.word, len(digits), n, ext),
				fmt.Sprintf("%s.%s%d%s", base, sc.word, n, ext),
			} {
				if fi, err := fsys.Stat(name); err == nil && !fi.IsDir() {
					return name, true
				}
			}
			return "", false
		}
		// a later part may be named; start from the lowest one present
		for first > 0 {
			if _, ok := part(first - 1); !ok {
				break
			}
			first--
		}
		var parts []string
		for n := first; ; n++ {
			name, ok := part(n)
			if !ok {
				break
			}
			parts = append(parts, name)
		}
		return Ref{Kind: KindNumbered, Raw: arg, Name: base + ext, Parts: parts}, true, nil
	}
	return Ref{}, false, nil
}

func checkFile(fsys afero.Fs, p string) error {
	fi, err := fsys.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoParts, p)
		}
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", p)
	}
	return nil
}

// baseName strips a part number suffix from p.
func baseName(p string) string {
	for _, sc := range schemes {
		if m := sc.re.FindStringSubmatch(p); m != nil {
			return m[1] + m[3]
		}
	}
	return p
}

// comparePartNames orders names with a common prefix by their trailing
// number, so name.10 sorts after name.9.
func comparePartNames(a, b string) int {
	pa, na := splitNumber(a)
	pb, nb := splitNumber(b)
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	if c := cmp.Compare(na, nb); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// splitNumber returns the text before the last run of digits and that
// number, or -1 when the name has no digits.
func splitNumber(name string) (string, int) {
	end := len(name)
	for end > 0 && (name[end-1] < '0' || name[end-1] > '9') {
		end--
	}
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return name, -1
	}
	n, err := strconv.Atoi(name[start:end])
	if err != nil {
		return name, -1
	}
	return name[:start], n
}
