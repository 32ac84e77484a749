// Package security validates the paths report exporters write to.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// canonicalPath resolves path to an absolute, symlink-free form. When path
// does not exist yet, its deepest existing ancestor is resolved instead and
// the remainder re-joined, so a new file under a symlinked directory still
// resolves to where it would really land.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest), nil
		}
		if filepath.Dir(dir) == dir {
			return abs, nil
		}
	}
}

// ValidatePathWithinDirectory rejects paths that resolve outside safeDir,
// through ".." components or symlinks.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	target, err := canonicalPath(filePath)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// ValidateExportPath accepts report destinations under the temp directory or
// the working directory. When exts is non-empty the file must carry one of
// those extensions (compared case-insensitively, with the dot).
func ValidateExportPath(filePath string, exts ...string) error {
	if len(exts) > 0 {
		ext := strings.ToLower(filepath.Ext(filePath))
		if !slices.Contains(exts, ext) {
			return fmt.Errorf("export path %q must end in one of %v", filePath, exts)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	allowed := []string{os.TempDir(), cwd}
	for _, dir := range allowed {
		if ValidatePathWithinDirectory(filePath, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("export path must be within one of %v", allowed)
}

// SanitizeFilename maps an arbitrary identifier, such as a metric name, onto
// [A-Za-z0-9._-], collapsing runs of other characters into one underscore.
// The result is at most 128 bytes and never empty.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		safe := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-'
		if !safe {
			if !pendingUnderscore {
				b.WriteByte('_')
				pendingUnderscore = true
			}
			continue
		}
		b.WriteRune(r)
		pendingUnderscore = false
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
