package utils

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest single path component accepted by the
// filesystem variants.
const MaxNameLength = 255

// NormalizePath turns a caller-supplied filesystem path into the canonical
// form every capability variant keys on: rooted at "/", cleaned, no trailing
// slash. Relative paths are interpreted against the root.
//
// The path must be non-empty valid UTF-8 without NUL bytes.
func NormalizePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !utf8.ValidString(p) {
		return "", fmt.Errorf("path is not valid UTF-8")
	}
	if strings.IndexByte(p, 0) >= 0 {
		return "", fmt.Errorf("path contains NUL byte")
	}

	clean := path.Clean("/" + p)
	for _, component := range SplitPath(clean) {
		if len(component) > MaxNameLength {
			return "", fmt.Errorf("path component exceeds %d bytes", MaxNameLength)
		}
	}
	return clean, nil
}

// SplitPath returns the components of a normalized path. The root yields an
// empty slice.
func SplitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// SplitParent splits a normalized path into its parent directory and final
// component. The root has parent "/" and an empty name.
func SplitParent(p string) (parent, name string) {
	if p == "/" {
		return "/", ""
	}
	return path.Dir(p), path.Base(p)
}

// IsAncestor reports whether ancestor is p itself or a directory above it.
// Both paths must be normalized.
func IsAncestor(ancestor, p string) bool {
	if ancestor == p || ancestor == "/" {
		return true
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// SecureJoin joins a virtual path onto a host directory and ensures the result
// stays within it. Unlike filepath.Join, a path that would escape base through
// ".." is rejected.
//
// Example usage:
//
//	hostPath, err := SecureJoin("/srv/base", "docs", name)
//	if err != nil {
//		return fmt.Errorf("invalid path combination: %w", err)
//	}
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) &&
		fullPath != cleanBase {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}
