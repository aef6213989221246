// Package local materializes extracted entries on a filesystem rooted at
// the output directory.
package local

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

var (
	// ErrUnsafePath is returned for entry names or link targets that
	// resolve outside the output root.
	ErrUnsafePath = errors.New("path escapes output directory")

	// ErrSymlinkUnsupported is returned when the filesystem cannot create
	// symbolic links. Links are never replaced by copies.
	ErrSymlinkUnsupported = errors.New("symbolic links not supported")

	// ErrLinkUnsupported is returned when the filesystem cannot create
	// hard links.
	ErrLinkUnsupported = errors.New("hard links not supported")
)

// Sink creates filesystem objects below Root.
type Sink struct {
	fs   afero.Fs
	root string
}

func New(fsys afero.Fs, root string) *Sink {
	return &Sink{fs: fsys, root: filepath.Clean(root)}
}

func (s *Sink) Root() string { return s.root }

// maxLinkHops bounds symlink resolution so link cycles fail.
const maxLinkHops = 255

// Resolve maps an entry name to a path under the root. Symlinks already on
// disk in the parent directories are followed and must stay inside the
// root; a link in the last element is not followed.
func (s *Sink) Resolve(name string) (string, error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	candidate := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(name)))
	rel, err := filepath.Rel(s.root, candidate)
	if err != nil {
		return "", err
	}
	if escapes(rel) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if rel == "." {
		return s.root, nil
	}
	dir, err := s.follow(s.root, filepath.Dir(rel))
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return filepath.Join(dir, filepath.Base(rel)), nil
}

// CheckLinkTarget refuses a symlink at linkPath whose target lands outside
// the root once the links it passes through are followed. Absolute targets
// are always refused.
func (s *Sink) CheckLinkTarget(linkPath, target string) error {
	if target == "" {
		return errors.New("symlink target is empty")
	}
	if filepath.IsAbs(target) || strings.HasPrefix(filepath.ToSlash(target), "/") {
		return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, linkPath, target)
	}
	if _, err := s.follow(filepath.Dir(linkPath), target); err != nil {
		return fmt.Errorf("%s -> %s: %w", linkPath, target, err)
	}
	return nil
}

// follow walks rel from dir one element at a time the way the OS would,
// reading symlinks as it meets them. dir must already be inside the root.
// Missing elements are taken as plain directories.
func (s *Sink) follow(dir, rel string) (string, error) {
	cur := filepath.Clean(dir)
	pending := splitPath(rel)
	for hops := 0; len(pending) > 0; {
		elem := pending[0]
		pending = pending[1:]
		if elem == ".." {
			if cur == s.root {
				return "", ErrUnsafePath
			}
			cur = filepath.Dir(cur)
			continue
		}
		next := filepath.Join(cur, elem)
		fi, err := s.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				cur = next
				continue
			}
			return "", err
		}
		if fi.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}
		if hops++; hops > maxLinkHops {
			return "", fmt.Errorf("%w: too many levels of symbolic links", ErrUnsafePath)
		}
		target, err := s.readlink(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			rel, err := filepath.Rel(s.root, filepath.Clean(target))
			if err != nil || escapes(rel) {
				return "", ErrUnsafePath
			}
			cur = s.root
			target = rel
		}
		pending = append(splitPath(target), pending...)
	}
	return cur, nil
}

func (s *Sink) readlink(path string) (string, error) {
	lr, ok := s.fs.(afero.LinkReader)
	if !ok {
		return "", ErrSymlinkUnsupported
	}
	return lr.ReadlinkIfPossible(path)
}

func splitPath(p string) []string {
	var out []string
	for _, elem := range strings.Split(filepath.ToSlash(p), "/") {
		if elem != "" && elem != "." {
			out = append(out, elem)
		}
	}
	return out
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Lstat describes the object at path without following a final symlink
// when the filesystem allows it.
func (s *Sink) Lstat(path string) (fs.FileInfo, error) {
	if ls, ok := s.fs.(afero.Lstater); ok {
		fi, _, err := ls.LstatIfPossible(path)
		return fi, err
	}
	return s.fs.Stat(path)
}

// Exists reports whether something is at path, and what.
func (s *Sink) Exists(path string) (fs.FileInfo, bool, error) {
	fi, err := s.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return fi, true, nil
}

func (s *Sink) MkdirAll(path string, mode fs.FileMode) error {
	return s.fs.MkdirAll(path, mode)
}

// Create truncates or creates a regular file. A symlink at path is
// removed first so the write cannot land on its target.
func (s *Sink) Create(path string, mode fs.FileMode) (afero.File, error) {
	if fi, ok, err := s.Exists(path); err != nil {
		return nil, err
	} else if ok && !fi.Mode().IsRegular() {
		if err := s.fs.Remove(path); err != nil {
			return nil, err
		}
	}
	return s.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
}

// Remove deletes path if present. Directories must be empty.
func (s *Sink) Remove(path string) error {
	err := s.fs.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Symlink replaces whatever is at path with a link to target.
func (s *Sink) Symlink(target, path string) error {
	linker, ok := s.fs.(afero.Linker)
	if !ok {
		return ErrSymlinkUnsupported
	}
	if err := s.Remove(path); err != nil {
		return err
	}
	if err := linker.SymlinkIfPossible(target, path); err != nil {
		if errors.Is(err, afero.ErrNoSymlink) {
			return ErrSymlinkUnsupported
		}
		return err
	}
	return nil
}

// Link replaces whatever is at path with a hard link to existing.
func (s *Sink) Link(existing, path string) error {
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return ErrLinkUnsupported
	}
	if err := s.Remove(path); err != nil {
		return err
	}
	return os.Link(existing, path)
}

func (s *Sink) Chmod(path string, mode fs.FileMode) error {
	return s.fs.Chmod(path, mode)
}

func (s *Sink) Chtimes(path string, mtime time.Time) error {
	return s.fs.Chtimes(path, mtime, mtime)
}

// Lchown is best effort and only touches the OS filesystem.
func (s *Sink) Lchown(path string, uid, gid int) error {
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return nil
	}
	return os.Lchown(path, uid, gid)
}

// SetXattrs applies extended attributes on the OS filesystem. Attributes
// the target filesystem rejects are skipped; the count of failures is
// returned.
func (s *Sink) SetXattrs(path string, attrs map[string][]byte) int {
	if len(attrs) == 0 {
		return 0
	}
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return len(attrs)
	}
	return setXattrs(path, attrs)
}
