package sessions

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/aide/internal/compaction"
	"github.com/haasonsaas/aide/internal/observability"
	"github.com/haasonsaas/aide/internal/storage"
	"github.com/haasonsaas/aide/pkg/models"
)

var (
	// ErrSessionNotFound is returned when no live session has the id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session with a taken id.
	ErrSessionExists = errors.New("session already exists")
)

// Config tunes the session manager and the context window it builds for each
// new session.
type Config struct {
	// MaxTokens is the context window budget per session.
	MaxTokens int

	// CompactionThreshold triggers compaction at this fraction of MaxTokens.
	CompactionThreshold float64

	// CompactionStrategy is drop_oldest, summarize, or sliding.
	CompactionStrategy string

	// Summarizer backs the summarize and sliding strategies. Without one
	// those strategies fall back to drop_oldest.
	Summarizer compaction.Summarizer

	// SteeringCap bounds each session's steering queue.
	SteeringCap int

	// Store persists session records when set. Persistence is best effort;
	// store failures are logged and the in-memory session stays live.
	Store storage.SessionStore

	Logger  *slog.Logger
	Metrics *observability.Metrics

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

// Manager owns the sessionId -> session map and last-touch timestamps. All
// map mutations are create, touch, or end, each atomic under one lock.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	lastTouch map[string]time.Time
	onEnd     []func(*Session)

	cfg    Config
	logger *slog.Logger
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 100000
	}
	if cfg.CompactionThreshold <= 0 || cfg.CompactionThreshold > 1 {
		cfg.CompactionThreshold = 0.85
	}
	if cfg.CompactionStrategy == "" {
		cfg.CompactionStrategy = compaction.StrategyDropOldest
	}
	if cfg.SteeringCap <= 0 {
		cfg.SteeringCap = DefaultSteeringCap
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		lastTouch: make(map[string]time.Time),
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "sessions"),
	}
}

// OnEnd registers a hook fired after a session ends, outside the manager
// lock. Hosts detach canvas states and bridges here.
func (m *Manager) OnEnd(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = append(m.onEnd, fn)
}

// Create builds a session from the seed record, activates it, and registers
// it. A zero seed ID gets a generated one.
func (m *Manager) Create(ctx context.Context, seed models.Session) (*Session, error) {
	now := m.cfg.Now()
	if seed.ID == "" {
		seed.ID = uuid.NewString()
	}
	seed.State = models.SessionCreated
	seed.StartedAt = now

	sess := &Session{
		data: seed,
		Context: compaction.NewManager(m.cfg.MaxTokens,
			compaction.WithThreshold(m.cfg.CompactionThreshold),
			compaction.WithStrategy(compaction.ByName(m.cfg.CompactionStrategy)),
			compaction.WithSummarizer(m.cfg.Summarizer),
			compaction.WithLogger(m.logger),
		),
		Steering: NewSteeringQueue(m.cfg.SteeringCap),
	}
	sess.Context.SetSystemPrompt(seed.SystemPrompt)
	if err := sess.Transition(models.SessionActive, now); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, exists := m.sessions[seed.ID]; exists {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	m.sessions[seed.ID] = sess
	m.lastTouch[seed.ID] = now
	m.mu.Unlock()

	if m.cfg.Store != nil {
		snapshot := sess.Snapshot()
		if err := m.cfg.Store.Create(ctx, &snapshot); err != nil {
			m.logger.Warn("persist session failed", "session_id", seed.ID, "error", err)
		}
	}
	m.cfg.Metrics.SessionStarted(seed.ChannelID)
	m.logger.Debug("session created", "session_id", seed.ID, "channel", seed.ChannelID)
	return sess, nil
}

// Get returns the live session with the id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Touch refreshes the session's last-activity timestamp. Reports whether the
// session is live.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	m.lastTouch[id] = m.cfg.Now()
	return true
}

// End finishes the session with the given terminal state, clears its context
// and steering queue, removes it from the live map, and fires OnEnd hooks.
func (m *Manager) End(ctx context.Context, id string, outcome models.SessionState) error {
	if !outcome.Terminal() {
		outcome = models.SessionCompleted
	}

	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.lastTouch, id)
	hooks := make([]func(*Session), len(m.onEnd))
	copy(hooks, m.onEnd)
	m.mu.Unlock()

	if err := sess.Transition(outcome, m.cfg.Now()); err != nil {
		m.logger.Warn("session end transition", "session_id", id, "error", err)
	}
	sess.Context.Clear()

	if m.cfg.Store != nil {
		snapshot := sess.Snapshot()
		if err := m.cfg.Store.Update(ctx, &snapshot); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("persist session end failed", "session_id", id, "error", err)
		}
	}
	m.cfg.Metrics.SessionEnded(sess.ChannelID())
	for _, hook := range hooks {
		hook(sess)
	}
	m.logger.Debug("session ended", "session_id", id, "outcome", string(outcome))
	return nil
}

// ListActive returns all live sessions ordered by start time.
func (m *Manager) ListActive() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Snapshot().StartedAt.Before(out[j].Snapshot().StartedAt)
	})
	return out
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EndAll ends every live session. Used at shutdown; idempotent.
func (m *Manager) EndAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.End(ctx, id, models.SessionCompleted); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Warn("end session during shutdown", "session_id", id, "error", err)
		}
	}
}

// Sweep ends sessions idle longer than maxIdle and returns their ids.
func (m *Manager) Sweep(ctx context.Context, maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}
	cutoff := m.cfg.Now().Add(-maxIdle)

	m.mu.Lock()
	var stale []string
	for id, touched := range m.lastTouch {
		if touched.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		if err := m.End(ctx, id, models.SessionCompleted); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Warn("sweep session", "session_id", id, "error", err)
		}
	}
	return stale
}

// StartSweeper runs Sweep on the interval until the context ends.
func (m *Manager) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ended := m.Sweep(ctx, maxIdle); len(ended) > 0 {
					m.logger.Info("swept idle sessions", "count", len(ended))
				}
			}
		}
	}()
}
