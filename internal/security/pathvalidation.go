// Package security guards file names and paths derived from request input.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape reports a path that resolves outside its base directory.
var ErrPathEscape = errors.New("path escapes base directory")

// maxFilenameLen bounds SanitizeFilename output.
const maxFilenameLen = 128

// ValidatePathWithinDirectory checks that filePath stays inside baseDir
// once both are made absolute and symlinks are resolved. filePath need not
// exist: its deepest existing ancestor is resolved instead, so a symlinked
// parent cannot redirect a new file elsewhere. baseDir must exist.
func ValidatePathWithinDirectory(filePath, baseDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", filePath, err)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", baseDir, err)
	}
	base, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", baseDir, err)
	}

	rel, err := filepath.Rel(base, canonical(absPath))
	if err != nil {
		return fmt.Errorf("%s: %w", filePath, ErrPathEscape)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%s outside %s: %w", filePath, baseDir, ErrPathEscape)
	}
	return nil
}

// canonical resolves symlinks in abs, or in its deepest existing ancestor
// when abs itself does not exist yet.
func canonical(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest)
		}
		if filepath.Dir(dir) == dir {
			return abs
		}
	}
}

// SanitizeFilename turns a user-supplied label into a file name: runs of
// anything but ASCII letters, digits, dot, underscore or dash become one
// underscore, leading and trailing dots and underscores are dropped and
// the result is capped at 128 bytes. Empty results become "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
