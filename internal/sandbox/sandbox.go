// Package sandbox confines tool file access to a single workspace directory.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind classifies a sandbox violation.
type Kind string

const (
	KindPathEscapesSandbox   Kind = "path_escapes_sandbox"
	KindSymlinkNotAllowed    Kind = "symlink_not_allowed"
	KindInvalidPathComponent Kind = "invalid_path_component"
	KindNotADirectory        Kind = "not_a_directory"
)

// Sentinel errors for errors.Is checks against a *Error.
var (
	ErrPathEscapesSandbox   = &Error{Kind: KindPathEscapesSandbox}
	ErrSymlinkNotAllowed    = &Error{Kind: KindSymlinkNotAllowed}
	ErrInvalidPathComponent = &Error{Kind: KindInvalidPathComponent}
	ErrNotADirectory        = &Error{Kind: KindNotADirectory}
)

// Error is a sandbox violation for a specific path.
type Error struct {
	Kind Kind
	Path string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindPathEscapesSandbox:
		return fmt.Sprintf("path escapes sandbox: %s", e.Path)
	case KindSymlinkNotAllowed:
		return fmt.Sprintf("symlink not allowed: %s", e.Path)
	case KindInvalidPathComponent:
		return fmt.Sprintf("invalid path component: %s", e.Path)
	case KindNotADirectory:
		return fmt.Sprintf("not a directory: %s", e.Path)
	default:
		return fmt.Sprintf("sandbox violation (%s): %s", e.Kind, e.Path)
	}
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func violation(kind Kind, path string) error {
	return &Error{Kind: kind, Path: path}
}

// Guard resolves workspace-relative paths. It holds only the configured root;
// the root is re-canonicalized on every call.
type Guard struct {
	root string
}

// New creates a guard for root. The root must be an existing directory.
func New(root string) (*Guard, error) {
	g := &Guard{root: root}
	if _, err := g.CanonicalRoot(); err != nil {
		return nil, err
	}
	return g, nil
}

// Root returns the configured (non-canonical) root.
func (g *Guard) Root() string {
	return g.root
}

// CanonicalRoot resolves the root to an absolute, symlink-free directory path.
func (g *Guard) CanonicalRoot() (string, error) {
	abs, err := filepath.Abs(g.root)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	if !info.IsDir() {
		return "", violation(KindNotADirectory, g.root)
	}
	return canon, nil
}

// ValidateRelative checks a caller-supplied path and returns its cleaned
// components. Absolute paths, volume names and ".." segments are rejected;
// "." segments and empty segments are dropped.
func ValidateRelative(rel string) ([]string, error) {
	if rel == "" {
		return nil, nil
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) || filepath.VolumeName(rel) != "" {
		return nil, violation(KindPathEscapesSandbox, rel)
	}
	var parts []string
	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		switch seg {
		case ".":
			continue
		case "..":
			return nil, violation(KindInvalidPathComponent, rel)
		}
		parts = append(parts, seg)
	}
	return parts, nil
}

// ResolveExisting resolves a path that must already exist and must not be a
// symlink. Used for read, stat, delete and rename sources.
func (g *Guard) ResolveExisting(rel string) (string, error) {
	parts, err := ValidateRelative(rel)
	if err != nil {
		return "", err
	}
	root, err := g.CanonicalRoot()
	if err != nil {
		return "", err
	}

	// Walk each component with Lstat so a symlinked intermediate directory is
	// rejected as well as a symlinked leaf.
	current := root
	for _, part := range parts {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return "", violation(KindSymlinkNotAllowed, rel)
		}
	}

	canon, err := filepath.EvalSymlinks(current)
	if err != nil {
		return "", err
	}
	if !within(root, canon) {
		return "", violation(KindPathEscapesSandbox, rel)
	}
	return canon, nil
}

// EnsureDir resolves a directory path, creating missing components. Any
// existing component that is a symlink or a non-directory is rejected.
func (g *Guard) EnsureDir(rel string) (string, error) {
	parts, err := ValidateRelative(rel)
	if err != nil {
		return "", err
	}
	root, err := g.CanonicalRoot()
	if err != nil {
		return "", err
	}
	return ensureDir(root, parts, rel)
}

func ensureDir(root string, parts []string, rel string) (string, error) {
	current := root
	for _, part := range parts {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		switch {
		case err == nil:
			if info.Mode()&os.ModeSymlink != 0 {
				return "", violation(KindSymlinkNotAllowed, rel)
			}
			if !info.IsDir() {
				return "", violation(KindNotADirectory, rel)
			}
		case os.IsNotExist(err):
			if err := os.Mkdir(current, 0755); err != nil && !os.IsExist(err) {
				return "", fmt.Errorf("creating directory %s: %w", part, err)
			}
		default:
			return "", err
		}
	}

	canon, err := filepath.EvalSymlinks(current)
	if err != nil {
		return "", err
	}
	if !within(root, canon) {
		return "", violation(KindPathEscapesSandbox, rel)
	}
	return canon, nil
}

// ResolveWrite resolves a file path for writing. The parent directory chain
// is created if needed; an existing symlink at the target is rejected.
func (g *Guard) ResolveWrite(rel string) (string, error) {
	parts, err := ValidateRelative(rel)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", violation(KindInvalidPathComponent, rel)
	}
	root, err := g.CanonicalRoot()
	if err != nil {
		return "", err
	}

	parent, err := ensureDir(root, parts[:len(parts)-1], rel)
	if err != nil {
		return "", err
	}
	target := filepath.Join(parent, parts[len(parts)-1])
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", violation(KindSymlinkNotAllowed, rel)
	}
	if !within(root, target) {
		return "", violation(KindPathEscapesSandbox, rel)
	}
	return target, nil
}

// Relative converts an absolute path inside the root back to a slash-separated
// workspace-relative path.
func (g *Guard) Relative(abs string) (string, error) {
	root, err := g.CanonicalRoot()
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", violation(KindPathEscapesSandbox, abs)
	}
	return filepath.ToSlash(rel), nil
}

func within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
