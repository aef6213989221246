package engine

import (
	"path"
	"strings"

	"github.com/spf13/afero"
)

// selector decides which entries are extracted and under what name.
type selector struct {
	strip   int
	include []string
	exclude []string
}

func newSelector(fsys afero.Fs, strip int, include, exclude, excludeFrom []string) (*selector, error) {
	excludes, err := loadExcludePatterns(fsys, exclude, excludeFrom)
	if err != nil {
		return nil, err
	}
	return &selector{strip: strip, include: include, exclude: excludes}, nil
}

// name returns the output name for an entry, or false when the entry is
// filtered out.
func (s *selector) name(entry string) (string, bool) {
	clean := path.Clean(strings.TrimPrefix(entry, "/"))
	if len(s.include) > 0 && !matchAny(s.include, clean) {
		return "", false
	}
	if matchAny(s.exclude, clean) {
		return "", false
	}
	return stripPathComponents(clean, s.strip)
}

// linkName maps a hard link target to its output name. Only
// strip-components applies; the target's own selection does not matter.
func (s *selector) linkName(target string) (string, bool) {
	return stripPathComponents(path.Clean(strings.TrimPrefix(target, "/")), s.strip)
}

// matchAny reports whether name or one of its parent directories matches.
// Patterns without a slash are matched against the last element only.
func matchAny(patterns []string, name string) bool {
	for p := name; p != "." && p != "/" && p != ""; p = path.Dir(p) {
		for _, pat := range patterns {
			subject := p
			if !strings.Contains(pat, "/") {
				subject = path.Base(p)
			}
			if ok, _ := path.Match(pat, subject); ok {
				return true
			}
		}
	}
	return false
}

func loadExcludePatterns(fsys afero.Fs, inline []string, files []string) ([]string, error) {
	out := append([]string(nil), inline...)
	for _, f := range files {
		b, err := afero.ReadFile(fsys, f)
		if err != nil {
			return nil, err
		}
		for line := range strings.SplitSeq(string(b), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			out = append(out, line)
		}
	}
	return out, nil
}

func stripPathComponents(name string, count int) (string, bool) {
	if count <= 0 {
		return name, true
	}
	parts := make([]string, 0)
	for p := range strings.SplitSeq(name, "/") {
		if p == "" || p == "." {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) <= count {
		return "", false
	}
	return strings.Join(parts[count:], "/"), true
}
