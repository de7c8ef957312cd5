package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// FailoverConfig tunes the failover provider chain.
type FailoverConfig struct {
	// CircuitThreshold is the consecutive-failure count that opens a
	// provider's circuit.
	CircuitThreshold int

	// CircuitCooldown is how long an open circuit skips a provider before
	// letting a request probe it again.
	CircuitCooldown time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultFailoverConfig returns the baseline failover tuning.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		CircuitThreshold: 3,
		CircuitCooldown:  30 * time.Second,
	}
}

type providerHealth struct {
	failures int
	openedAt time.Time
	open     bool
}

// Failover chains providers in priority order. A request goes to the first
// healthy provider; failover-worthy and transient start errors move on to
// the next, permanent request errors surface immediately. It implements
// Provider so callers cannot tell it from a single backend.
type Failover struct {
	providers []Provider
	cfg       FailoverConfig
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	health map[string]*providerHealth
}

// NewFailover builds a failover chain over the given providers, first is
// preferred.
func NewFailover(providers []Provider, cfg FailoverConfig) (*Failover, error) {
	if len(providers) == 0 {
		return nil, ErrNoProvider
	}
	if cfg.CircuitThreshold <= 0 {
		cfg.CircuitThreshold = 3
	}
	if cfg.CircuitCooldown <= 0 {
		cfg.CircuitCooldown = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Failover{
		providers: providers,
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "agent.failover"),
		now:       cfg.Now,
		health:    make(map[string]*providerHealth),
	}, nil
}

// Name implements Provider.
func (f *Failover) Name() string { return "failover" }

// Models implements Provider; it unions the chain's models.
func (f *Failover) Models() []Model {
	var out []Model
	seen := make(map[string]bool)
	for _, p := range f.providers {
		for _, m := range p.Models() {
			if !seen[m.ID] {
				seen[m.ID] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// SupportsTools implements Provider; true when every chained provider
// handles tools, since a mid-conversation switch must not lose them.
func (f *Failover) SupportsTools() bool {
	for _, p := range f.providers {
		if !p.SupportsTools() {
			return false
		}
	}
	return true
}

// Complete implements Provider. It starts the stream on the first available
// provider; start failures that warrant failover move down the chain.
// Mid-stream failures are not replayed here, the loop's retry covers those.
func (f *Failover) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	var lastErr error
	for _, p := range f.providers {
		if !f.available(p.Name()) {
			continue
		}
		chunks, err := p.Complete(ctx, req)
		if err == nil {
			f.recordSuccess(p.Name())
			return chunks, nil
		}
		lastErr = err
		f.recordFailure(p.Name())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !ShouldFailover(err) && !IsRetryable(err) {
			return nil, err
		}
		f.logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"error", err)
	}
	if lastErr == nil {
		return nil, fmt.Errorf("all providers circuit-open: %w", ErrNoProvider)
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

func (f *Failover) available(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.health[name]
	if !ok || !h.open {
		return true
	}
	if f.now().Sub(h.openedAt) >= f.cfg.CircuitCooldown {
		// Half-open probe: one request through, failure reopens.
		h.open = false
		h.failures = f.cfg.CircuitThreshold - 1
		return true
	}
	return false
}

func (f *Failover) recordSuccess(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.health, name)
}

func (f *Failover) recordFailure(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.health[name]
	if !ok {
		h = &providerHealth{}
		f.health[name] = h
	}
	h.failures++
	if h.failures >= f.cfg.CircuitThreshold && !h.open {
		h.open = true
		h.openedAt = f.now()
		f.logger.Warn("provider circuit opened", "provider", name, "failures", h.failures)
	}
}

var _ Provider = (*Failover)(nil)
