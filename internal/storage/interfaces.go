// Package storage persists sessions, messages, and cron jobs. Stores are
// optional plug-ins: the core runs fully in memory and gains durability only
// when a SQLite store is configured.
package storage

import (
	"context"
	"errors"

	"github.com/haasonsaas/aide/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// SessionStore persists session records.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	List(ctx context.Context, states ...models.SessionState) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// MessageStore persists conversation messages.
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

// JobStore persists cron job definitions.
type JobStore interface {
	Put(ctx context.Context, job *models.CronJob) error
	Get(ctx context.Context, name string) (*models.CronJob, error)
	List(ctx context.Context) ([]*models.CronJob, error)
	Delete(ctx context.Context, name string) error
}

// StoreSet groups the storage dependencies handed to the core.
type StoreSet struct {
	Sessions SessionStore
	Messages MessageStore
	Jobs     JobStore
	closer   func() error
}

// Close releases any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// NewMemorySet returns a fully in-memory StoreSet.
func NewMemorySet() StoreSet {
	return StoreSet{
		Sessions: NewMemorySessionStore(),
		Messages: NewMemoryMessageStore(),
		Jobs:     NewMemoryJobStore(),
	}
}
