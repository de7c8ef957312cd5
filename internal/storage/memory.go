package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/aide/pkg/models"
)

// MemorySessionStore provides an in-memory SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]models.Session)}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return ErrAlreadyExists
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := session
	return &out, nil
}

func (s *MemorySessionStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; !exists {
		return ErrNotFound
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *MemorySessionStore) List(ctx context.Context, states ...models.SessionState) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if len(states) > 0 && !stateIn(session.State, states) {
			continue
		}
		copied := session
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; !exists {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func stateIn(state models.SessionState, states []models.SessionState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

// MemoryMessageStore provides an in-memory MessageStore.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string][]models.Message // session id -> ordered messages
}

// NewMemoryMessageStore creates an in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: make(map[string][]models.Message)}
}

func (s *MemoryMessageStore) Append(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.SessionID == "" {
		return fmt.Errorf("message session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], *msg)
	return nil
}

func (s *MemoryMessageStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[sessionID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]*models.Message, 0, len(all)-start)
	for i := start; i < len(all); i++ {
		copied := all[i]
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MemoryMessageStore) DeleteBySession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, sessionID)
	return nil
}

// MemoryJobStore provides an in-memory JobStore.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]models.CronJob
}

// NewMemoryJobStore creates an in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]models.CronJob)}
}

func (s *MemoryJobStore) Put(ctx context.Context, job *models.CronJob) error {
	if job == nil || job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = *job
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, name string) (*models.CronJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := job
	return &out, nil
}

func (s *MemoryJobStore) List(ctx context.Context) ([]*models.CronJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CronJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := job
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryJobStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; !exists {
		return ErrNotFound
	}
	delete(s.jobs, name)
	return nil
}
