// Package fileset validates and expands the file lists handed to fileclip.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrPathNotFound is matched (via errors.Is) by every *PathNotFoundError.
var ErrPathNotFound = errors.New("path not found")

// PathNotFoundError reports an input path that does not exist, or that is
// not a regular file where one is required.
type PathNotFoundError struct {
	Path string
	// Exists is true when something is at Path but it is not a regular file.
	Exists bool
}

func (e *PathNotFoundError) Error() string {
	if e.Exists {
		return fmt.Sprintf("not a regular file: %s", e.Path)
	}
	return fmt.Sprintf("path not found: %s", e.Path)
}

func (e *PathNotFoundError) Is(target error) bool { return target == ErrPathNotFound }

// IsRegular reports whether path resolves to an existing regular file.
func IsRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Resolve makes every path absolute and checks that it is a regular file.
// It stops at the first bad entry; nothing is returned unless every path is
// valid.
func Resolve(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, &PathNotFoundError{Path: p}
		}
		if !info.Mode().IsRegular() {
			return nil, &PathNotFoundError{Path: p, Exists: true}
		}
		out = append(out, abs)
	}
	return out, nil
}

// Partition splits paths into those that are existing regular files and
// those that are not, preserving order.
func Partition(paths []string) (valid, invalid []string) {
	for _, p := range paths {
		if IsRegular(p) {
			valid = append(valid, p)
		} else {
			invalid = append(invalid, p)
		}
	}
	return valid, invalid
}

// Expand turns a list of file and directory arguments into a list of files.
// Directories are walked recursively. Duplicates are dropped, first
// occurrence wins.
func Expand(args []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, p)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, &PathNotFoundError{Path: arg}
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if d.Type().IsRegular() || IsRegular(p) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
	}
	return out, nil
}
