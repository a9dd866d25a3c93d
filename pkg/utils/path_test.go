package utils

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		want        string
		errContains string
	}{
		{name: "root", input: "/", want: "/"},
		{name: "absolute file", input: "/a/b.txt", want: "/a/b.txt"},
		{name: "relative is rooted", input: "a/b", want: "/a/b"},
		{name: "trailing slash", input: "/dir/", want: "/dir"},
		{name: "dot segments", input: "/a/./b/../c", want: "/a/c"},
		{name: "cannot climb above root", input: "/../../etc", want: "/etc"},
		{name: "duplicate separators", input: "//a///b", want: "/a/b"},
		{name: "empty", input: "", errContains: "cannot be empty"},
		{name: "invalid utf8", input: "/bad\xff", errContains: "UTF-8"},
		{name: "nul byte", input: "/a\x00b", errContains: "NUL"},
		{name: "long component", input: "/" + strings.Repeat("x", MaxNameLength+1), errContains: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePath(tt.input)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	assert.Empty(t, SplitPath("/"))
	assert.Equal(t, []string{"a"}, SplitPath("/a"))
	assert.Equal(t, []string{"a", "b", "c"}, SplitPath("/a/b/c"))
}

func TestSplitParent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input      string
		wantParent string
		wantName   string
	}{
		{"/", "/", ""},
		{"/a", "/", "a"},
		{"/a/b/c.txt", "/a/b", "c.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			parent, name := SplitParent(tt.input)
			assert.Equal(t, tt.wantParent, parent)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestIsAncestor(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAncestor("/", "/anything"))
	assert.True(t, IsAncestor("/a", "/a"))
	assert.True(t, IsAncestor("/a", "/a/b"))
	assert.False(t, IsAncestor("/a", "/ab"))
	assert.False(t, IsAncestor("/a/b", "/a"))
}

func TestSecureJoin(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "base")

	tests := []struct {
		name     string
		elements []string
		want     string
		wantErr  bool
	}{
		{name: "simple join", elements: []string{"docs", "a.txt"}, want: filepath.Join(base, "docs", "a.txt")},
		{name: "rooted virtual path", elements: []string{"/docs/a.txt"}, want: filepath.Join(base, "docs", "a.txt")},
		{name: "base itself", elements: []string{"/"}, want: base},
		{name: "escape attempt", elements: []string{"..", "etc"}, wantErr: true},
		{name: "escape in middle", elements: []string{"docs", "..", "..", "etc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SecureJoin(base, tt.elements...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SecureJoin("")
	assert.Error(t, err)
}
