package engine

import (
	"testing"

	"github.com/spf13/afero"
)

func TestStripPathComponents(t *testing.T) {
	got, ok := stripPathComponents("parent/dir/file.txt", 1)
	if !ok {
		t.Fatalf("expected keep")
	}
	if got != "dir/file.txt" {
		t.Fatalf("got %q, want %q", got, "dir/file.txt")
	}
}

func TestStripPathComponentsDrop(t *testing.T) {
	_, ok := stripPathComponents("parent/file.txt", 2)
	if ok {
		t.Fatalf("expected drop")
	}
}

func TestSelectorName(t *testing.T) {
	sel := &selector{include: []string{"src", "*.md"}, exclude: []string{"src/vendor", "*.o"}}
	cases := []struct {
		in   string
		want string
		keep bool
	}{
		{"src/main.c", "src/main.c", true},
		{"/src/lib/a.c", "src/lib/a.c", true},
		{"README.md", "README.md", true},
		{"docs/guide.md", "docs/guide.md", true},
		{"src/vendor/x.c", "", false},
		{"src/main.o", "", false},
		{"other/file", "", false},
	}
	for _, c := range cases {
		got, ok := sel.name(c.in)
		if ok != c.keep || got != c.want {
			t.Fatalf("name(%q) = %q, %v; want %q, %v", c.in, got, ok, c.want, c.keep)
		}
	}
}

func TestLoadExcludePatterns(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/ex", []byte("# skip\n\n*.tmp\n  cache  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := loadExcludePatterns(fsys, []string{"a"}, []string{"/ex"})
	if err != nil {
		t.Fatalf("loadExcludePatterns() error = %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "*.tmp" || got[2] != "cache" {
		t.Fatalf("patterns = %q", got)
	}
	if _, err := loadExcludePatterns(fsys, nil, []string{"/missing"}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
