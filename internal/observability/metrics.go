package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the central Prometheus metric set. All methods are safe on a
// nil receiver so instrumented code never has to branch.
type Metrics struct {
	// MessageCounter tracks messages by channel and direction.
	MessageCounter *prometheus.CounterVec

	// LLMRequestDuration measures model call latency in seconds.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model calls by provider, model, and status.
	LLMRequestCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by name and status.
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	ToolExecutionDuration *prometheus.HistogramVec

	// AgentRunCounter counts agent runs by terminal event type.
	AgentRunCounter *prometheus.CounterVec

	// AgentIterations observes engine turns per run.
	AgentIterations prometheus.Histogram

	// ErrorCounter tracks errors by component and kind.
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge of live sessions by channel.
	ActiveSessions *prometheus.GaugeVec

	// SchedulerFirings counts cron job firings by job name and status.
	SchedulerFirings *prometheus.CounterVec

	// StreamDeliveries counts outbound stream updates by channel and mode
	// (edit or resend).
	StreamDeliveries *prometheus.CounterVec

	// WSConnections is a gauge of open canvas WebSocket connections.
	WSConnections prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the process-wide metric set, registering it on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			MessageCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aide_messages_total",
					Help: "Messages processed by channel and direction",
				},
				[]string{"channel", "direction"},
			),
			LLMRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "aide_llm_request_duration_seconds",
					Help:    "Duration of model API calls in seconds",
					Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
				},
				[]string{"provider", "model"},
			),
			LLMRequestCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aide_llm_requests_total",
					Help: "Model API calls by provider, model, and status",
				},
				[]string{"provider", "model", "status"},
			),
			ToolExecutionCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aide_tool_executions_total",
					Help: "Tool invocations by tool name and status",
				},
				[]string{"tool_name", "status"},
			),
			ToolExecutionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "aide_tool_execution_duration_seconds",
					Help:    "Duration of tool executions in seconds",
					Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
				},
				[]string{"tool_name"},
			),
			AgentRunCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aide_agent_runs_total",
					Help: "Agent runs by terminal event type",
				},
				[]string{"outcome"},
			),
			AgentIterations: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "aide_agent_iterations",
					Help:    "Engine turns taken per agent run",
					Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 30},
				},
			),
			ErrorCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aide_errors_total",
					Help: "Errors by component and kind",
				},
				[]string{"component", "kind"},
			),
			ActiveSessions: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "aide_active_sessions",
					Help: "Live sessions by channel",
				},
				[]string{"channel"},
			),
			SchedulerFirings: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aide_scheduler_firings_total",
					Help: "Cron job firings by job name and status",
				},
				[]string{"job", "status"},
			),
			StreamDeliveries: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aide_stream_deliveries_total",
					Help: "Outbound stream updates by channel and delivery mode",
				},
				[]string{"channel", "mode"},
			),
			WSConnections: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "aide_ws_connections",
					Help: "Open canvas WebSocket connections",
				},
			),
		}
	})
	return metrics
}

// RecordMessage counts one processed message.
func (m *Metrics) RecordMessage(channel, direction string) {
	if m == nil {
		return
	}
	m.MessageCounter.WithLabelValues(channel, direction).Inc()
}

// RecordLLMRequest records one model call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, seconds float64) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(seconds)
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(seconds)
}

// RecordAgentRun records a finished run and its iteration count.
func (m *Metrics) RecordAgentRun(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.AgentRunCounter.WithLabelValues(outcome).Inc()
	m.AgentIterations.Observe(float64(iterations))
}

// RecordError counts one error.
func (m *Metrics) RecordError(component, kind string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, kind).Inc()
}

// SessionStarted bumps the live-session gauge.
func (m *Metrics) SessionStarted(channel string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(channel).Inc()
}

// SessionEnded drops the live-session gauge.
func (m *Metrics) SessionEnded(channel string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(channel).Dec()
}

// RecordSchedulerFiring counts one cron job firing.
func (m *Metrics) RecordSchedulerFiring(job, status string) {
	if m == nil {
		return
	}
	m.SchedulerFirings.WithLabelValues(job, status).Inc()
}

// RecordStreamDelivery counts one outbound stream update.
func (m *Metrics) RecordStreamDelivery(channel, mode string) {
	if m == nil {
		return
	}
	m.StreamDeliveries.WithLabelValues(channel, mode).Inc()
}

// WSConnected bumps the WebSocket connection gauge.
func (m *Metrics) WSConnected() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// WSDisconnected drops the WebSocket connection gauge.
func (m *Metrics) WSDisconnected() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
