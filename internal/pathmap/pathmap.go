// Package pathmap rewrites paths from one workspace root to another.
//
// The requester sees the workspace at a container path (e.g. /workspace)
// while the watcher sees the same storage at a host path (e.g.
// C:\Users\me\dev). Translate maps the former onto the latter, using the
// separator convention of the target root.
package pathmap

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutOfScope is matched (via errors.Is) by every *OutOfScopeError.
var ErrOutOfScope = errors.New("path out of scope")

// OutOfScopeError reports a path that does not live under the source root.
type OutOfScopeError struct {
	Path string
	Root string
}

func (e *OutOfScopeError) Error() string {
	return fmt.Sprintf("path %s is not under %s", e.Path, e.Root)
}

func (e *OutOfScopeError) Is(target error) bool { return target == ErrOutOfScope }

// Contains reports whether path, once made absolute with symlinks resolved,
// is root itself or a descendant of root.
func Contains(path, root string) bool {
	_, ok := relative(path, root)
	return ok
}

// Translate returns path rewritten from sourceRoot to targetRoot.
func Translate(path, sourceRoot, targetRoot string) (string, error) {
	rel, ok := relative(path, sourceRoot)
	if !ok {
		return "", &OutOfScopeError{Path: path, Root: sourceRoot}
	}
	return join(targetRoot, rel), nil
}

// TranslateAll translates every path, failing on the first one out of scope.
// No path is translated unless all of them are in scope.
func TranslateAll(paths []string, sourceRoot, targetRoot string) ([]string, error) {
	for _, p := range paths {
		if !Contains(p, sourceRoot) {
			return nil, &OutOfScopeError{Path: p, Root: sourceRoot}
		}
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		t, err := Translate(p, sourceRoot, targetRoot)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// relative returns the slash-separated elements of path below root. Both are
// compared in canonical form, so a symlink cannot lead out of root.
func relative(path, root string) ([]string, bool) {
	if root == "" {
		return nil, false
	}
	canonPath, err := canonical(path)
	if err != nil {
		return nil, false
	}
	canonRoot, err := canonical(root)
	if err != nil {
		return nil, false
	}
	rel, err := filepath.Rel(canonRoot, canonPath)
	if err != nil {
		return nil, false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, false
	}
	if rel == "." {
		return nil, true
	}
	return strings.Split(rel, "/"), true
}

// canonical returns path made absolute with symlinks resolved. Components
// that do not exist yet are kept as written below the deepest ancestor that
// does.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	var tail []string
	for cur := abs; ; {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

// join appends elems to root using root's separator convention.
func join(root string, elems []string) string {
	sep := separatorOf(root)
	if len(elems) == 0 {
		return root
	}
	base := strings.TrimRight(root, `/\`)
	return base + sep + strings.Join(elems, sep)
}

// separatorOf guesses the path convention of root: Windows roots carry a
// drive letter, a UNC prefix, or a backslash.
func separatorOf(root string) string {
	if strings.Contains(root, `\`) {
		return `\`
	}
	if len(root) >= 2 && root[1] == ':' && isLetter(root[0]) {
		return `\`
	}
	return "/"
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
