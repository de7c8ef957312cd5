package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Op classifies what a tool wants to do with a path or command.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
	OpExec  Op = "exec"
)

// defaultBlockedPrefixes shields system directories and credential stores
// even when a workspace root is configured wide enough to reach them.
var defaultBlockedPrefixes = []string{
	"/etc",
	"/sys",
	"/proc",
	"/dev",
	"/boot",
	"/var/run",
	"/.ssh",
	"/.gnupg",
	"/.aws",
	"/.kube",
	"/.docker",
	"/.config/gcloud",
}

// FilesystemScope confines tool file access to a workspace root and a
// blocked-prefix set. With EnforceSymlinks set, symlinks whose real target
// escapes the workspace or lands under a blocked prefix are rejected too.
type FilesystemScope struct {
	root            string
	rootReal        string
	blocked         []string
	enforceSymlinks bool
}

// NewFilesystemScope builds a scope rooted at root. An empty root means the
// current directory. Extra blocked prefixes extend the built-in set.
func NewFilesystemScope(root string, blocked []string, enforceSymlinks bool) (*FilesystemScope, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	prefixes := make([]string, 0, len(defaultBlockedPrefixes)+len(blocked))
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		for _, p := range defaultBlockedPrefixes {
			if strings.HasPrefix(p, "/.") {
				prefixes = append(prefixes, filepath.Join(home, p))
				continue
			}
			prefixes = append(prefixes, p)
		}
	} else {
		for _, p := range defaultBlockedPrefixes {
			if !strings.HasPrefix(p, "/.") {
				prefixes = append(prefixes, p)
			}
		}
	}
	for _, p := range blocked {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve blocked path %q: %w", p, err)
		}
		prefixes = append(prefixes, abs)
	}

	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		rootReal = rootAbs
	}

	return &FilesystemScope{
		root:            rootAbs,
		rootReal:        rootReal,
		blocked:         prefixes,
		enforceSymlinks: enforceSymlinks,
	}, nil
}

// Root returns the absolute workspace root.
func (s *FilesystemScope) Root() string {
	return s.root
}

// ValidatePath resolves path to an absolute location inside the workspace
// and returns it. Relative paths resolve against the workspace root.
func (s *FilesystemScope) ValidatePath(path string, op Op) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", &SecurityError{Kind: KindPathScope, Severity: SeverityMedium, Detail: "path is required"}
	}
	if strings.ContainsRune(clean, 0) {
		return "", &SecurityError{Kind: KindPathScope, Severity: SeverityHigh, Detail: "path contains null byte", Path: path}
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(s.root, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if prefix := s.blockedPrefix(targetAbs); prefix != "" {
		return "", &SecurityError{
			Kind:     KindPathScope,
			Severity: SeverityHigh,
			Detail:   fmt.Sprintf("%s access to protected location %s", op, prefix),
			Path:     targetAbs,
		}
	}
	if !s.inside(targetAbs) {
		return "", &SecurityError{
			Kind:     KindPathScope,
			Severity: SeverityHigh,
			Detail:   fmt.Sprintf("%s outside workspace", op),
			Path:     targetAbs,
		}
	}

	if s.enforceSymlinks {
		real, err := resolveReal(targetAbs)
		if err != nil {
			return "", fmt.Errorf("resolve symlinks: %w", err)
		}
		if prefix := s.blockedPrefix(real); prefix != "" {
			return "", &SecurityError{
				Kind:     KindPathScope,
				Severity: SeverityHigh,
				Detail:   fmt.Sprintf("symlink target under protected location %s", prefix),
				Path:     targetAbs,
			}
		}
		if !within(s.rootReal, real) {
			return "", &SecurityError{
				Kind:     KindPathScope,
				Severity: SeverityHigh,
				Detail:   "symlink target escapes workspace",
				Path:     targetAbs,
			}
		}
	}

	return targetAbs, nil
}

func (s *FilesystemScope) inside(abs string) bool {
	return within(s.root, abs)
}

func within(root, abs string) bool {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func (s *FilesystemScope) blockedPrefix(abs string) string {
	for _, prefix := range s.blocked {
		if abs == prefix || strings.HasPrefix(abs, prefix+string(os.PathSeparator)) {
			return prefix
		}
	}
	return ""
}

// resolveReal evaluates symlinks for the deepest existing ancestor of path
// and rejoins the non-existent remainder, so targets that do not exist yet
// still resolve.
func resolveReal(path string) (string, error) {
	remainder := make([]string, 0, 4)
	current := path
	for {
		real, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(remainder) - 1; i >= 0; i-- {
				real = filepath.Join(real, remainder[i])
			}
			return real, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		remainder = append(remainder, filepath.Base(current))
		current = parent
	}
}
