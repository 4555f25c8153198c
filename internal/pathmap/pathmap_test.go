package pathmap

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("container paths are POSIX")
	}
	tests := map[string]struct {
		path, source, target string
		expected             string
	}{
		"windows host": {
			path:     "/workspace/sub/file.txt",
			source:   "/workspace",
			target:   `C:\Users\me\dev`,
			expected: `C:\Users\me\dev\sub\file.txt`,
		},
		"windows host trailing separator": {
			path:     "/workspace/file.txt",
			source:   "/workspace/",
			target:   `C:\Users\me\dev\`,
			expected: `C:\Users\me\dev\file.txt`,
		},
		"bare drive": {
			path:     "/workspace/a/b.txt",
			source:   "/workspace",
			target:   "D:",
			expected: `D:\a\b.txt`,
		},
		"posix host": {
			path:     "/workspace/sub/file.txt",
			source:   "/workspace",
			target:   "/Users/me/dev",
			expected: "/Users/me/dev/sub/file.txt",
		},
		"special characters": {
			path:     "/workspace/test file@3.txt",
			source:   "/workspace",
			target:   "/home/me/dev",
			expected: "/home/me/dev/test file@3.txt",
		},
		"dot segments are resolved": {
			path:     "/workspace/sub/../other/x.txt",
			source:   "/workspace",
			target:   "/host",
			expected: "/host/other/x.txt",
		},
		"root itself": {
			path:     "/workspace",
			source:   "/workspace",
			target:   "/host",
			expected: "/host",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Translate(tc.path, tc.source, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestTranslateOutOfScope(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("container paths are POSIX")
	}
	for _, p := range []string{"/etc/file.txt", "/workspace2/file.txt", "/workspace/../etc/passwd"} {
		_, err := Translate(p, "/workspace", `C:\Users\me\dev`)
		require.ErrorIs(t, err, ErrOutOfScope, p)

		var oos *OutOfScopeError
		require.ErrorAs(t, err, &oos)
		assert.Equal(t, p, oos.Path)
	}
}

func TestContains(t *testing.T) {
	root := t.TempDir()
	assert.True(t, Contains(filepath.Join(root, "test.txt"), root))
	assert.True(t, Contains(filepath.Join(root, "a", "b", "c.txt"), root))
	assert.True(t, Contains(root, root))
	assert.False(t, Contains(filepath.Join(filepath.Dir(root), "other", "test.txt"), root))
	assert.False(t, Contains(root+"-sibling", root))
	assert.False(t, Contains(filepath.Join(root, "x"), ""))
}

func TestSymlinksAreResolved(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	base := t.TempDir()
	ws := filepath.Join(base, "ws")
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o644))
	inside := filepath.Join(ws, "sub", "real.txt")
	require.NoError(t, os.WriteFile(inside, []byte("y"), 0o644))

	require.NoError(t, os.Symlink(secret, filepath.Join(ws, "link.txt")))
	require.NoError(t, os.Symlink(outside, filepath.Join(ws, "escape")))
	require.NoError(t, os.Symlink(inside, filepath.Join(ws, "alias.txt")))
	wsLink := filepath.Join(base, "ws-link")
	require.NoError(t, os.Symlink(ws, wsLink))

	for _, p := range []string{filepath.Join(ws, "link.txt"), filepath.Join(ws, "escape", "secret.txt")} {
		assert.False(t, Contains(p, ws), p)
		_, err := Translate(p, ws, "/host")
		require.ErrorIs(t, err, ErrOutOfScope, p)
		_, err = TranslateAll([]string{inside, p}, ws, "/host")
		require.ErrorIs(t, err, ErrOutOfScope, p)
	}

	got, err := Translate(filepath.Join(ws, "alias.txt"), ws, "/host")
	require.NoError(t, err)
	assert.Equal(t, "/host/sub/real.txt", got)

	got, err = Translate(inside, wsLink, "/host")
	require.NoError(t, err)
	assert.Equal(t, "/host/sub/real.txt", got)

	got, err = Translate(filepath.Join(wsLink, "sub", "not-yet.txt"), ws, "/host")
	require.NoError(t, err)
	assert.Equal(t, "/host/sub/not-yet.txt", got)
}

func TestTranslateAllIsAllOrNothing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("container paths are POSIX")
	}
	got, err := TranslateAll([]string{"/workspace/a", "/workspace/b/c"}, "/workspace", "/host")
	require.NoError(t, err)
	assert.Equal(t, []string{"/host/a", "/host/b/c"}, got)

	got, err = TranslateAll([]string{"/workspace/a", "/tmp/b"}, "/workspace", "/host")
	require.ErrorIs(t, err, ErrOutOfScope)
	assert.Nil(t, got)
}
