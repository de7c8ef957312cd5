package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haasonsaas/aide/pkg/models"
)

// Manager owns one bounded conversation window: at most one pinned system
// prompt followed by an append-only message log. Adding a message past the
// configured threshold triggers a compaction pass with the active strategy.
//
// A session is the unit of mutual exclusion for its context; the internal
// mutex only guards against concurrent readers (bridges, verifiers) racing
// the loop's writes.
type Manager struct {
	mu           sync.Mutex
	systemPrompt string
	messages     []models.Message

	maxTokens  int
	threshold  float64
	strategy   Strategy
	summarizer Summarizer
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithThreshold sets the compaction trigger as a fraction of maxTokens.
func WithThreshold(t float64) Option {
	return func(m *Manager) {
		if t > 0 && t <= 1 {
			m.threshold = t
		}
	}
}

// WithStrategy sets the active compaction strategy.
func WithStrategy(s Strategy) Option {
	return func(m *Manager) { m.strategy = s }
}

// WithSummarizer injects the summarizer callback used by the summarize and
// sliding strategies.
func WithSummarizer(s Summarizer) Option {
	return func(m *Manager) { m.summarizer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics attaches compaction metrics.
func WithMetrics(mx *Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// NewManager creates a context manager bounded to maxTokens.
func NewManager(maxTokens int, opts ...Option) *Manager {
	m := &Manager{
		maxTokens: maxTokens,
		threshold: 0.85,
		strategy:  DropOldest(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "compaction")
	return m
}

// SetSystemPrompt pins the system prompt at position 0 of the window.
func (m *Manager) SetSystemPrompt(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemPrompt = text
}

// AddMessage appends a message. It never rejects on size; when the estimate
// exceeds maxTokens*threshold a compaction pass runs best-effort.
func (m *Manager) AddMessage(ctx context.Context, msg models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if m.maxTokens <= 0 {
		return
	}
	if float64(m.estimateLocked()) > float64(m.maxTokens)*m.threshold {
		if err := m.compactLocked(ctx); err != nil {
			m.logger.Warn("compaction failed", "error", err)
		}
	}
}

// Messages returns the system prompt (if any) followed by the conversation,
// as a copy.
func (m *Manager) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, 0, len(m.messages)+1)
	if m.systemPrompt != "" {
		out = append(out, models.Message{Role: models.RoleSystem, Content: m.systemPrompt})
	}
	out = append(out, m.messages...)
	return out
}

// TokenEstimate returns the current estimate over the full window,
// system prompt included.
func (m *Manager) TokenEstimate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimateLocked()
}

// Len returns the number of conversation messages, system prompt excluded.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Clear drops the conversation but preserves the system prompt.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// Compact runs one explicit compaction pass with the active strategy.
func (m *Manager) Compact(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compactLocked(ctx)
}

func (m *Manager) estimateLocked() int {
	total := estimateSpan(len(m.systemPrompt))
	return total + EstimateAll(m.messages)
}

// compactLocked applies the active strategy. Strategies that need a
// summarizer fall back to drop_oldest when none is configured or the
// summarizer errors; the pass always terminates.
func (m *Manager) compactLocked(ctx context.Context) error {
	if len(m.messages) == 0 || m.maxTokens <= 0 {
		return nil
	}
	before := len(m.messages)
	beforeTokens := m.estimateLocked()
	target := int(float64(m.maxTokens) * m.strategy.CompactionTarget)

	strategy := m.strategy
	if strategy.needsSummarizer() && m.summarizer == nil {
		strategy.Name = StrategyDropOldest
	}

	var err error
	switch strategy.Name {
	case StrategySummarize:
		err = m.summarizePass(ctx, strategy, target)
	case StrategySliding:
		err = m.slidingPass(ctx, strategy, target)
	default:
		m.dropOldestPass(strategy, target)
	}
	if err != nil {
		// Summarization failed; shrink with drop_oldest so the window
		// still makes progress.
		m.logger.Warn("summarizer error, dropping oldest instead", "error", err)
		m.dropOldestPass(strategy, target)
	}

	m.metrics.RecordPass(before - len(m.messages))
	m.logger.Debug("compacted context",
		"strategy", strategy.Name,
		"messages_before", before,
		"messages_after", len(m.messages),
		"tokens_before", beforeTokens,
		"tokens_after", m.estimateLocked())
	return nil
}

// dropOldestPass walks from the oldest group forward, dropping whole
// non-protected groups until the estimate falls under target or nothing
// droppable remains.
func (m *Manager) dropOldestPass(s Strategy, target int) {
	groups := splitGroups(m.messages)
	protected := protectedIndexes(m.messages, groups, s)

	estimate := m.estimateLocked()
	dropped := make(map[int]bool)
	for gi := 0; gi < len(groups) && estimate > target; gi++ {
		if groupProtected(groups[gi], protected) {
			continue
		}
		dropped[gi] = true
		estimate -= groupTokens(m.messages, groups[gi])
	}
	if len(dropped) == 0 {
		return
	}
	out := make([]models.Message, 0, len(m.messages))
	for gi, g := range groups {
		if dropped[gi] {
			continue
		}
		out = append(out, m.messages[g.start:g.end]...)
	}
	m.messages = out
}

// summarizePass splits the conversation at len*(1-keepRatio), summarizes the
// prefix, and rebuilds as task description + summary + verbatim suffix.
func (m *Manager) summarizePass(ctx context.Context, s Strategy, target int) error {
	split := int(float64(len(m.messages)) * (1 - s.KeepRatio))
	return m.summarizePrefix(ctx, s, split)
}

// slidingPass walks backwards accumulating whole groups into a window until
// the target is covered and enough trailing tool groups are inside, then
// summarizes everything before the window.
func (m *Manager) slidingPass(ctx context.Context, s Strategy, target int) error {
	groups := splitGroups(m.messages)
	if len(groups) == 0 {
		return nil
	}
	totalToolGroups := 0
	for _, g := range groups {
		if g.toolGroup {
			totalToolGroups++
		}
	}
	needToolGroups := s.PreserveRecentToolPairs
	if needToolGroups > totalToolGroups {
		needToolGroups = totalToolGroups
	}

	windowTokens := 0
	toolGroups := 0
	start := len(groups)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		if windowTokens >= target && toolGroups >= needToolGroups {
			break
		}
		windowTokens += groupTokens(m.messages, groups[gi])
		if groups[gi].toolGroup {
			toolGroups++
		}
		start = gi
	}
	if start == 0 {
		return nil // everything fits in the window
	}
	return m.summarizePrefix(ctx, s, groups[start].start)
}

// summarizePrefix summarizes messages[:split] and rebuilds the conversation.
// The split is snapped down to a group boundary so tool-call/result groups
// stay atomic, and capped so the trailing tool groups and last message stay
// verbatim.
func (m *Manager) summarizePrefix(ctx context.Context, s Strategy, split int) error {
	groups := splitGroups(m.messages)
	if len(m.messages) == 0 || split <= 0 {
		return nil
	}
	if split >= len(m.messages) {
		split = len(m.messages) - 1
	}
	// Snap down to the boundary of the group containing split.
	for _, g := range groups {
		if split > g.start && split < g.end {
			split = g.start
			break
		}
	}
	// Keep the trailing tool groups out of the summarized prefix.
	remaining := s.PreserveRecentToolPairs
	for gi := len(groups) - 1; gi >= 0 && remaining > 0; gi-- {
		if !groups[gi].toolGroup {
			continue
		}
		if groups[gi].start < split {
			split = groups[gi].start
		}
		remaining--
	}
	if split <= 0 {
		return nil
	}

	prefix := m.messages[:split]
	suffix := m.messages[split:]

	var task *models.Message
	summarizable := make([]models.Message, 0, len(prefix))
	for i := range prefix {
		if task == nil && s.PreserveTaskDescription && prefix[i].Role == models.RoleUser {
			task = &prefix[i]
			continue
		}
		summarizable = append(summarizable, prefix[i])
	}

	summary := ""
	if len(summarizable) > 0 {
		var err error
		summary, err = m.summarizer.Summarize(ctx, summarizable)
		if err != nil {
			return fmt.Errorf("summarize %d messages: %w", len(summarizable), err)
		}
	}

	rebuilt := make([]models.Message, 0, len(suffix)+2)
	if task != nil {
		rebuilt = append(rebuilt, *task)
	}
	if summary != "" {
		rebuilt = append(rebuilt, models.Message{
			Role:    models.RoleSystem,
			Content: SummaryPrefix + " " + summary,
		})
	}
	rebuilt = append(rebuilt, suffix...)
	m.messages = rebuilt
	return nil
}
