// Package sanitize validates caller-supplied note paths before they reach
// the filesystem.
package sanitize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathTraversal indicates a path contains traversal or escapes its root.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")
)

// ValidatePath checks a path for security issues:
//   - No directory traversal (..)
//   - Resolves to an absolute path
//   - Stays within allowedRoot when one is given
//
// Relative paths are resolved against allowedRoot, or against the working
// directory when allowedRoot is empty. Symlinks are followed for paths that
// exist, so a link inside the root cannot point outside it.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	// Check for obvious traversal patterns before any processing
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) && allowedRoot != "" {
		cleanPath = filepath.Join(allowedRoot, cleanPath)
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if allowedRoot == "" {
		return absPath, nil
	}

	absRoot, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed root: %w", err)
	}
	if err := within(absRoot, absPath); err != nil {
		return "", err
	}

	// Re-check with links resolved. A path that does not exist yet is left
	// to the caller's open to report.
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return absPath, nil
		}
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		realRoot = absRoot
	}
	if err := within(realRoot, realPath); err != nil {
		return "", err
	}
	return absPath, nil
}

// within reports ErrPathTraversal unless path is root or below it.
func within(root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return fmt.Errorf("%w: path outside allowed root", ErrPathTraversal)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: path escapes allowed root", ErrPathTraversal)
	}
	return nil
}
