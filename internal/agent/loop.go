package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/aide/internal/backoff"
	"github.com/haasonsaas/aide/internal/security"
	"github.com/haasonsaas/aide/internal/sessions"
	"github.com/haasonsaas/aide/pkg/models"
)

const (
	// DefaultMaxIterations bounds tool-use cycles within one turn.
	DefaultMaxIterations = 30

	// DefaultMaxRetries bounds engine retries per iteration and verifier
	// re-entries per turn.
	DefaultMaxRetries = 2

	// MaxStreamBytes caps accumulated model output per iteration. Overflow
	// is a fatal error and fails the session.
	MaxStreamBytes = 10 << 20

	defaultLightTimeout = 30 * time.Second
	defaultHeavyTimeout = 120 * time.Second
)

var (
	// ErrNoProvider is returned when the loop has no model backend.
	ErrNoProvider = errors.New("no provider configured")

	// ErrNilSession is returned when Run is called without a session.
	ErrNilSession = errors.New("nil session")

	// ErrIterationLimit is carried by the terminal error event when a turn
	// exhausts its iteration budget.
	ErrIterationLimit = errors.New("iteration limit reached")

	// ErrStreamOverflow is carried by the fatal error event when the model
	// stream exceeds MaxStreamBytes.
	ErrStreamOverflow = errors.New("model stream exceeded buffer limit")
)

// DrainMode selects how many steering messages are folded in per cycle.
type DrainMode string

const (
	// DrainAll appends every queued steering message before the next
	// engine turn.
	DrainAll DrainMode = "all"

	// DrainOneAtATime appends a single steering message per cycle.
	DrainOneAtATime DrainMode = "one-at-a-time"
)

// Hooks are optional lifecycle callbacks around a turn.
type Hooks struct {
	// OnBeforeFirstRun runs after the user message is appended and before
	// the first engine call. Used to inject recalled memories. Errors are
	// logged and do not abort the turn.
	OnBeforeFirstRun func(ctx context.Context, sess *sessions.Session) error

	// OnAfterComplete runs after the final answer is accepted.
	OnAfterComplete func(ctx context.Context, sess *sessions.Session, finalAnswer string) error
}

// Verifier judges a finished turn. The concrete implementation lives in the
// verify package; the loop only needs this slice of it.
type Verifier interface {
	Verify(ctx context.Context, vc *models.VerificationContext) (*models.VerificationResult, error)
}

// Config assembles a Loop.
type Config struct {
	Provider  Provider
	Model     string
	MaxTokens int
	Registry  *Registry

	MaxIterations  int
	MaxRetries     int
	MaxStreamBytes int
	Backoff        backoff.Policy
	DrainMode      DrainMode

	// EnableStateSnapshots records tool state pre/post images for the
	// verifier's state-consistency check.
	EnableStateSnapshots bool

	LightToolTimeout time.Duration
	HeavyToolTimeout time.Duration

	Security security.Policy
	Memory   MemoryBackend

	// Verifier gates completions when set. A failure outcome re-enters the
	// loop only when RetryOnFailure is also set.
	Verifier       Verifier
	RetryOnFailure bool

	Hooks       Hooks
	ToolContext ToolContext
	Plugins     *PluginRegistry
	Logger      *slog.Logger
	Now         func() time.Time
}

// Loop drives user turns through the engine/tool cycle. One Loop serves many
// sessions; per-session mutual exclusion is the caller's contract (a session
// runs one turn at a time).
type Loop struct {
	cfg     Config
	logger  *slog.Logger
	plugins *PluginRegistry
	now     func() time.Time

	convMu sync.Mutex
	convs  map[string]*security.ConversationContext
}

// NewLoop validates the config and applies defaults.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxStreamBytes <= 0 {
		cfg.MaxStreamBytes = MaxStreamBytes
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.Default()
	}
	if cfg.DrainMode == "" {
		cfg.DrainMode = DrainAll
	}
	if cfg.LightToolTimeout <= 0 {
		cfg.LightToolTimeout = defaultLightTimeout
	}
	if cfg.HeavyToolTimeout <= 0 {
		cfg.HeavyToolTimeout = defaultHeavyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	plugins := cfg.Plugins
	if plugins == nil {
		plugins = NewPluginRegistry(cfg.Logger)
	}
	return &Loop{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "agent.loop"),
		plugins: plugins,
		now:     cfg.Now,
		convs:   make(map[string]*security.ConversationContext),
	}, nil
}

// Use registers an event plugin.
func (l *Loop) Use(p Plugin) {
	l.plugins.Use(p)
}

// Run executes one user turn. The returned channel carries the run's events
// and is closed after the terminal event. Cancelling ctx surfaces as an
// aborted event.
func (l *Loop) Run(ctx context.Context, sess *sessions.Session, userMsg models.Message) (<-chan *models.AgentEvent, error) {
	if sess == nil {
		return nil, ErrNilSession
	}
	if userMsg.ID == "" {
		userMsg.ID = uuid.NewString()
	}
	if userMsg.SessionID == "" {
		userMsg.SessionID = sess.ID()
	}
	if userMsg.Role == "" {
		userMsg.Role = models.RoleUser
	}
	if userMsg.CreatedAt.IsZero() {
		userMsg.CreatedAt = l.now()
	}

	em := &emitter{
		ch:        make(chan *models.AgentEvent, 64),
		plugins:   l.plugins,
		logger:    l.logger,
		now:       l.now,
		runID:     uuid.NewString(),
		sessionID: sess.ID(),
	}
	go l.run(ctx, em, sess, userMsg)
	return em.ch, nil
}

type runState struct {
	task          string
	toolResults   []models.ToolResult
	snapshots     []models.StateSnapshot
	verifyRetries int
}

func (l *Loop) run(ctx context.Context, em *emitter, sess *sessions.Session, userMsg models.Message) {
	defer em.close()
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("run panicked", "run_id", em.runID, "panic", rec)
			em.error(ctx, models.ErrKindFatal, fmt.Sprintf("internal error: %v", rec), nil)
		}
	}()

	sess.Context.AddMessage(ctx, userMsg)

	if l.cfg.Hooks.OnBeforeFirstRun != nil {
		if err := l.cfg.Hooks.OnBeforeFirstRun(ctx, sess); err != nil {
			l.logger.Warn("before-first-run hook failed", "session_id", sess.ID(), "error", err)
		}
	}

	st := &runState{task: userMsg.Content}

	for iter := 1; iter <= l.cfg.MaxIterations; iter++ {
		em.iteration = iter
		sess.BumpLoopIterations(1)

		if err := ctx.Err(); err != nil {
			em.aborted(ctx, abortReason(ctx))
			return
		}

		text, calls, err := l.streamWithRetry(ctx, em, sess)
		if err != nil {
			l.finishStreamError(ctx, em, sess, err)
			return
		}

		assistant := models.Message{
			ID:        uuid.NewString(),
			SessionID: sess.ID(),
			Role:      models.RoleAssistant,
			Content:   text,
			ToolCalls: calls,
			CreatedAt: l.now(),
		}
		sess.Context.AddMessage(ctx, assistant)

		if len(calls) == 0 {
			if l.finishTurn(ctx, em, sess, st, text) {
				return
			}
			continue
		}

		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				em.aborted(ctx, abortReason(ctx))
				return
			}
			result, secErr := l.executeCall(ctx, em, sess, call, st)
			st.toolResults = append(st.toolResults, *result)

			toolMsg := models.Message{
				ID:          uuid.NewString(),
				SessionID:   sess.ID(),
				Role:        models.RoleTool,
				Content:     result.Content,
				ToolCallID:  call.ID,
				ToolResults: []models.ToolResult{*result},
				CreatedAt:   l.now(),
			}
			sess.Context.AddMessage(ctx, toolMsg)

			if secErr != nil {
				sess.RecordError(secErr.Error())
				em.error(ctx, models.ErrKindSecurity, secErr.Error(), secErr)
				return
			}
		}

		l.drainSteering(ctx, sess)
	}

	sess.RecordError(ErrIterationLimit.Error())
	em.error(ctx, models.ErrKindIterationLimit,
		fmt.Sprintf("no completion after %d iterations", l.cfg.MaxIterations), ErrIterationLimit)
}

// finishTurn runs the optional verification gate and emits the terminal
// complete event, returning true when the turn is over. When verification
// fails and retries remain, it stages a synthetic user message carrying the
// judge's reasoning and returns false so the iteration loop re-enters.
func (l *Loop) finishTurn(ctx context.Context, em *emitter, sess *sessions.Session, st *runState, answer string) bool {
	var verification *models.VerificationResult
	if l.cfg.Verifier != nil {
		verification = l.verifyAnswer(ctx, sess, st, answer)
		if verification != nil && verification.Outcome == models.OutcomeFailure &&
			l.cfg.RetryOnFailure && st.verifyRetries < l.cfg.MaxRetries {
			st.verifyRetries++
			reason := verification.Reasoning
			if reason == "" {
				reason = "the answer did not satisfy the task"
			}
			sess.Context.AddMessage(ctx, models.Message{
				ID:        uuid.NewString(),
				SessionID: sess.ID(),
				Role:      models.RoleUser,
				Content:   "Your previous answer failed verification: " + reason + " Please address the issues and answer again.",
				CreatedAt: l.now(),
			})
			l.logger.Info("verification failed, re-entering loop",
				"session_id", sess.ID(),
				"retry", st.verifyRetries,
				"confidence", verification.Confidence)
			return false
		}
	}

	em.complete(ctx, answer, verification)

	if l.cfg.Hooks.OnAfterComplete != nil {
		if err := l.cfg.Hooks.OnAfterComplete(ctx, sess, answer); err != nil {
			l.logger.Warn("after-complete hook failed", "session_id", sess.ID(), "error", err)
		}
	}
	return true
}

func (l *Loop) verifyAnswer(ctx context.Context, sess *sessions.Session, st *runState, answer string) *models.VerificationResult {
	vc := &models.VerificationContext{
		TaskDescription: st.task,
		FinalAnswer:     answer,
		Messages:        sess.Context.Messages(),
		ToolResults:     st.toolResults,
		Snapshots:       st.snapshots,
	}
	result, err := l.cfg.Verifier.Verify(ctx, vc)
	if err != nil {
		l.logger.Warn("verification failed to run", "session_id", sess.ID(), "error", err)
		return nil
	}
	return result
}

// finishStreamError maps an engine failure onto the right terminal event.
func (l *Loop) finishStreamError(ctx context.Context, em *emitter, sess *sessions.Session, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		em.aborted(ctx, abortReason(ctx))
	case errors.Is(err, ErrStreamOverflow):
		sess.RecordError(err.Error())
		if terr := sess.Transition(models.SessionFailed, l.now()); terr != nil {
			l.logger.Warn("session transition failed", "session_id", sess.ID(), "error", terr)
		}
		em.error(ctx, models.ErrKindFatal, err.Error(), err)
	default:
		sess.RecordError(err.Error())
		em.error(ctx, models.ErrKindProvider, err.Error(), err)
	}
}

// streamWithRetry calls the engine, retrying transient failures with
// exponential backoff. MaxRetries counts retries after the first attempt.
func (l *Loop) streamWithRetry(ctx context.Context, em *emitter, sess *sessions.Session) (string, []models.ToolCall, error) {
	attempts := l.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := backoff.SleepBackoff(ctx, l.cfg.Backoff, attempt-1); err != nil {
				return "", nil, err
			}
		}
		text, calls, err := l.streamOnce(ctx, em, sess)
		if err == nil {
			return text, calls, nil
		}
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		if errors.Is(err, ErrStreamOverflow) {
			return "", nil, err
		}
		if !IsRetryable(err) {
			return "", nil, err
		}
		lastErr = err
		l.logger.Warn("engine call failed",
			"session_id", sess.ID(),
			"attempt", attempt,
			"error", err)
	}
	return "", nil, fmt.Errorf("engine failed after %d attempts: %w", attempts, lastErr)
}

// streamOnce performs one engine call, re-emitting text deltas and
// collecting tool calls from the stream.
func (l *Loop) streamOnce(ctx context.Context, em *emitter, sess *sessions.Session) (string, []models.ToolCall, error) {
	history := sess.Context.Messages()
	req := &CompletionRequest{
		Model:     l.cfg.Model,
		System:    SystemText(history),
		Messages:  ToMessages(history),
		Tools:     l.cfg.Registry.Exposed(),
		MaxTokens: l.cfg.MaxTokens,
	}

	// Own cancel scope so an early return releases the producer goroutine.
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	chunks, err := l.cfg.Provider.Complete(streamCtx, req)
	if err != nil {
		return "", nil, err
	}
	sess.BumpLLMCalls(1)

	var text strings.Builder
	var calls []models.ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", nil, chunk.Error
		}
		if chunk.Thinking != "" {
			em.thinkingOnce(ctx, chunk.Thinking)
		}
		if chunk.Text != "" {
			if text.Len()+len(chunk.Text) > l.cfg.MaxStreamBytes {
				return "", nil, ErrStreamOverflow
			}
			text.WriteString(chunk.Text)
			em.text(ctx, chunk.Text, text.String())
		}
		if chunk.ToolCall != nil {
			calls = append(calls, *chunk.ToolCall)
		}
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
	}
	// A provider may close the stream without a terminal chunk when the
	// run is cancelled; do not mistake that for an empty completion.
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return text.String(), calls, nil
}

// executeCall runs one tool call end to end: argument screening, schema
// validation, snapshots, execution with timeout, and output sanitizing. The
// returned error is non-nil only for security violations, which end the
// turn; every other failure comes back as a failed result and the loop
// continues.
func (l *Loop) executeCall(ctx context.Context, em *emitter, sess *sessions.Session, call models.ToolCall, st *runState) (*models.ToolResult, error) {
	if l.cfg.Security != nil && len(call.Input) > 0 {
		threats, err := l.cfg.Security.ValidateInput(string(call.Input), l.conversationFor(sess.ID()))
		if err != nil {
			result := failedResult(call.ID, "blocked by security policy: "+err.Error())
			em.toolStart(ctx, call)
			em.toolEnd(ctx, call, result, 0)
			return result, err
		}
		if len(threats) > 0 {
			l.logger.Debug("advisory threats in tool arguments",
				"session_id", sess.ID(),
				"tool", call.Name,
				"count", len(threats))
		}
	}

	tool, _ := l.cfg.Registry.Get(call.Name)

	if l.cfg.EnableStateSnapshots && tool != nil {
		l.recordSnapshot(ctx, tool, call, "before", st)
	}

	em.toolStart(ctx, call)

	timeout := l.cfg.LightToolTimeout
	if w, ok := tool.(Weighted); ok && w.Weight() == WeightHeavy {
		timeout = l.cfg.HeavyToolTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tc := l.cfg.ToolContext
	tc.SessionID = sess.ID()
	tc.RunID = em.runID
	tc.ChannelID = sess.ChannelID()
	if tc.Security == nil {
		tc.Security = l.cfg.Security
	}
	if tc.Memory == nil {
		tc.Memory = l.cfg.Memory
	}
	tc.Progress = func(text string) {
		em.toolProgress(ctx, call, text)
	}
	callCtx = WithToolContext(callCtx, &tc)

	start := l.now()
	result, err := l.cfg.Registry.Execute(callCtx, call)
	elapsed := l.now().Sub(start)
	sess.BumpToolInvocations(1)

	var secErr error
	if err != nil {
		if se, ok := security.AsSecurityError(err); ok {
			secErr = se
			result = failedResult(call.ID, se.Error())
		} else if ctx.Err() == nil && callCtx.Err() != nil {
			result = failedResult(call.ID, fmt.Sprintf("tool %s timed out after %s", call.Name, timeout))
		} else {
			result = failedResult(call.ID, "tool execution failed: "+err.Error())
		}
	}
	if result == nil {
		result = failedResult(call.ID, "tool returned no result")
	}

	if l.cfg.Security != nil && result.Content != "" {
		clean, matched := l.cfg.Security.SanitizeOutput(result.Content)
		if len(matched) > 0 {
			l.logger.Info("tool output redacted",
				"session_id", sess.ID(),
				"tool", call.Name,
				"patterns", matched)
		}
		result.Content = clean
	}

	if l.cfg.EnableStateSnapshots && tool != nil && secErr == nil {
		l.recordSnapshot(ctx, tool, call, "after", st)
	}

	em.toolEnd(ctx, call, result, elapsed)
	return result, secErr
}

func (l *Loop) recordSnapshot(ctx context.Context, tool Tool, call models.ToolCall, phase string, st *runState) {
	sr, ok := tool.(StateReporter)
	if !ok {
		return
	}
	snap, err := sr.StateSnapshot(ctx, call.Input)
	if err != nil {
		l.logger.Debug("state snapshot failed", "tool", call.Name, "phase", phase, "error", err)
		return
	}
	st.snapshots = append(st.snapshots, models.StateSnapshot{
		ToolName: call.Name,
		CallID:   call.ID,
		Phase:    phase,
		Snapshot: snap,
	})
}

// drainSteering appends queued steering messages as user messages so the
// next engine turn sees them. Runs after tool execution, never mid-stream.
func (l *Loop) drainSteering(ctx context.Context, sess *sessions.Session) {
	queue := sess.Steering
	if override, ok := SteeringQueueFromContext(ctx); ok {
		queue = override
	}
	if queue == nil {
		return
	}

	var pending []string
	if l.cfg.DrainMode == DrainOneAtATime {
		if msg, ok := queue.Pop(); ok {
			pending = append(pending, msg)
		}
	} else {
		pending = queue.Drain()
	}
	if len(pending) == 0 {
		return
	}

	for _, text := range pending {
		sess.Context.AddMessage(ctx, models.Message{
			ID:        uuid.NewString(),
			SessionID: sess.ID(),
			Role:      models.RoleUser,
			Content:   text,
			CreatedAt: l.now(),
		})
	}
	l.logger.Debug("steering messages applied", "session_id", sess.ID(), "count", len(pending))
}

func (l *Loop) conversationFor(sessionID string) *security.ConversationContext {
	l.convMu.Lock()
	defer l.convMu.Unlock()
	conv, ok := l.convs[sessionID]
	if !ok {
		conv = security.NewConversationContext()
		l.convs[sessionID] = conv
	}
	return conv
}

// ForgetSession drops per-session loop state (threat escalation counters).
// Call when a session ends.
func (l *Loop) ForgetSession(sessionID string) {
	l.convMu.Lock()
	delete(l.convs, sessionID)
	l.convMu.Unlock()
	if l.cfg.Registry != nil {
		l.cfg.Registry.ReleaseSession(sessionID)
	}
}

func abortReason(ctx context.Context) string {
	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err.Error()
	}
	return "cancelled"
}
