// Package skills loads prompt skills from a directory. A skill is a
// markdown file with YAML frontmatter naming it; the body is injected into
// the conversation when the skill is used.
package skills

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/aide/internal/agent"
)

const (
	// SkillFilename is the manifest name inside a skill directory.
	SkillFilename = "SKILL.md"

	frontmatterDelimiter = "---"
)

// ErrSkillNotFound is returned when Load cannot find the named skill.
var ErrSkillNotFound = errors.New("skill not found")

// Skill is one parsed skill definition.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Content     string `yaml:"-"`
}

// DirLoader discovers skills under a directory: either <name>/SKILL.md or
// a bare <name>.md. Discovery reruns on each call, so edits are picked up
// without a restart.
type DirLoader struct {
	dir    string
	logger *slog.Logger

	mu sync.Mutex
}

// NewDirLoader creates a loader rooted at dir.
func NewDirLoader(dir string, logger *slog.Logger) *DirLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirLoader{
		dir:    dir,
		logger: logger.With("component", "skills"),
	}
}

// List returns the sorted names of every valid skill.
func (l *DirLoader) List() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	skills := l.discover()
	names := make([]string, 0, len(skills))
	for name := range skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load returns the body of the named skill.
func (l *DirLoader) Load(name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	skills := l.discover()
	skill, ok := skills[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	return skill.Content, nil
}

// discover walks the skill directory and parses every candidate manifest.
// Invalid manifests are logged and skipped.
func (l *DirLoader) discover() map[string]Skill {
	skills := make(map[string]Skill)
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("skill directory unreadable", "dir", l.dir, "error", err)
		}
		return skills
	}

	for _, entry := range entries {
		var path string
		switch {
		case entry.IsDir():
			path = filepath.Join(l.dir, entry.Name(), SkillFilename)
		case strings.HasSuffix(entry.Name(), ".md") && entry.Name() != SkillFilename:
			path = filepath.Join(l.dir, entry.Name())
		default:
			continue
		}

		skill, err := ParseSkillFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				l.logger.Debug("skipping invalid skill", "path", path, "error", err)
			}
			continue
		}
		skills[skill.Name] = *skill
	}
	return skills
}

// ParseSkillFile reads and parses one skill manifest.
func ParseSkillFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSkill(data)
}

// ParseSkill parses manifest bytes: YAML frontmatter with a required name
// and description, then the markdown body.
func ParseSkill(data []byte) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var skill Skill
	if err := yaml.Unmarshal(frontmatter, &skill); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if skill.Name == "" {
		return nil, errors.New("skill name is required")
	}
	if skill.Description == "" {
		return nil, errors.New("skill description is required")
	}

	skill.Content = strings.TrimSpace(string(body))
	return &skill, nil
}

func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !scanner.Scan() {
		return nil, nil, errors.New("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, errors.New("missing opening frontmatter delimiter")
	}

	var front bytes.Buffer
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		front.WriteString(line)
		front.WriteByte('\n')
	}
	if !closed {
		return nil, nil, errors.New("missing closing frontmatter delimiter")
	}

	var body bytes.Buffer
	for scanner.Scan() {
		body.WriteString(scanner.Text())
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return front.Bytes(), body.Bytes(), nil
}

var _ agent.SkillsLoader = (*DirLoader)(nil)
