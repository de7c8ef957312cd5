// Package memory provides a file-backed long-term memory store. Entries
// live in a JSONL file and are recalled by keyword overlap, so the store
// works without an embedding provider.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/aide/internal/agent"
)

// FileStore appends entries to a JSONL file and keeps them in memory for
// recall. Safe for concurrent use.
type FileStore struct {
	path string

	mu      sync.RWMutex
	entries []agent.MemoryEntry

	now func() time.Time
}

// NewFileStore opens (or creates) the store at path and loads existing
// entries.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("memory store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory directory: %w", err)
	}

	s := &FileStore{path: path, now: time.Now}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry agent.MemoryEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// A corrupt line loses one memory, not the store.
			continue
		}
		s.entries = append(s.entries, entry)
	}
	return scanner.Err()
}

// Store appends the entry to the file and the in-memory set.
func (s *FileStore) Store(ctx context.Context, entry agent.MemoryEntry) error {
	if strings.TrimSpace(entry.Content) == "" {
		return fmt.Errorf("memory content is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode memory entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write memory entry: %w", err)
	}

	s.entries = append(s.entries, entry)
	return nil
}

// Recall returns up to k entries ranked by keyword overlap with the query,
// most recent first among equals. An empty query recalls nothing.
func (s *FileStore) Recall(ctx context.Context, query string, k int) ([]agent.MemoryEntry, error) {
	terms := tokenize(query)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry agent.MemoryEntry
		score float64
	}
	var results []scored
	for _, entry := range s.entries {
		score := overlap(terms, tokenize(entry.Content))
		for _, tag := range entry.Tags {
			if _, ok := terms[strings.ToLower(tag)]; ok {
				score += 1
			}
		}
		if score > 0 {
			results = append(results, scored{entry: entry, score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].entry.CreatedAt.After(results[j].entry.CreatedAt)
	})

	if len(results) > k {
		results = results[:k]
	}
	out := make([]agent.MemoryEntry, len(results))
	for i, r := range results {
		out[i] = r.entry
	}
	return out, nil
}

// Len reports how many entries are loaded.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if len(f) < 3 {
			continue
		}
		tokens[f] = struct{}{}
	}
	return tokens
}

func overlap(query, doc map[string]struct{}) float64 {
	var hits float64
	for term := range query {
		if _, ok := doc[term]; ok {
			hits++
		}
	}
	return hits
}

var _ agent.MemoryBackend = (*FileStore)(nil)
