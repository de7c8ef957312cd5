// Package providers implements model backends for the agent loop.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/aide/internal/agent"
	"github.com/haasonsaas/aide/internal/backoff"
	"github.com/haasonsaas/aide/pkg/models"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultMaxTokens      = 4096

	// maxEmptyStreamEvents guards against malformed streams that emit
	// events forever without content.
	maxEmptyStreamEvents = 300
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey authenticates against the API. Empty is allowed for delayed
	// configuration; Complete fails until it is set.
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL string

	// DefaultModel is used when a request does not name one.
	DefaultModel string

	// MaxRetries bounds stream-start retries for transient failures.
	MaxRetries int

	// ThinkingBudget enables extended thinking with the given token budget
	// when > 0.
	ThinkingBudget int64
}

// AnthropicProvider streams completions from the Anthropic Messages API,
// including tool use blocks and extended thinking.
type AnthropicProvider struct {
	client     anthropic.Client
	configured bool
	cfg        AnthropicConfig
	retry      backoff.Policy
}

// NewAnthropicProvider creates the provider. The client is only usable when
// an API key is configured.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultAnthropicModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	p := &AnthropicProvider{
		cfg: cfg,
		retry: backoff.Policy{
			Initial: 500 * time.Millisecond,
			Max:     10 * time.Second,
			Factor:  2,
			Jitter:  0.1,
		},
	}
	if cfg.APIKey != "" {
		options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			options = append(options, option.WithBaseURL(cfg.BaseURL))
		}
		p.client = anthropic.NewClient(options...)
		p.configured = true
	}
	return p
}

// Name implements agent.Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// SupportsTools implements agent.Provider.
func (p *AnthropicProvider) SupportsTools() bool { return true }

// Models implements agent.Provider.
func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-opus-4-1", Name: "Claude Opus 4.1", ContextWindow: 200000, Vision: true},
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextWindow: 200000, Vision: true},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextWindow: 200000, Vision: true},
	}
}

// Complete implements agent.Provider. The stream starts on the returned
// channel after transient start failures are retried; stream errors arrive
// as chunk.Error and close the channel.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if !p.configured {
		return nil, errors.New("anthropic: API key not configured")
	}

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		model := p.model(req.Model)
		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var err error
		for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
			stream, err = p.createStream(ctx, req)
			if err == nil {
				break
			}
			wrapped := p.wrapError(err, model)
			if !agent.IsRetryable(wrapped) {
				send(ctx, chunks, &agent.CompletionChunk{Error: wrapped, Done: true})
				return
			}
			err = wrapped
			if attempt < p.cfg.MaxRetries {
				if serr := backoff.SleepBackoff(ctx, p.retry, attempt+1); serr != nil {
					send(ctx, chunks, &agent.CompletionChunk{Error: serr, Done: true})
					return
				}
			}
		}
		if err != nil {
			send(ctx, chunks, &agent.CompletionChunk{Error: fmt.Errorf("anthropic: retries exhausted: %w", err), Done: true})
			return
		}

		p.processStream(ctx, stream, chunks, model)
	}()
	return chunks, nil
}

func (p *AnthropicProvider) createStream(ctx context.Context, req *agent.CompletionRequest) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  messages,
		MaxTokens: int64(maxTokens(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}
	if p.cfg.ThinkingBudget > 0 {
		budget := p.cfg.ThinkingBudget
		if budget < 1024 {
			budget = 1024
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

// processStream translates Anthropic SSE events into completion chunks.
// Tool input JSON arrives as partial fragments and is assembled per content
// block; the finished call is emitted on content_block_stop.
func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk, model string) {
	var currentTool *models.ToolCall
	var currentInput strings.Builder
	emptyEvents := 0
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			if messageStart.Message.Usage.InputTokens > 0 {
				inputTokens = int(messageStart.Message.Usage.InputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentTool = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					if !send(ctx, chunks, &agent.CompletionChunk{Text: delta.Text}) {
						return
					}
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					if !send(ctx, chunks, &agent.CompletionChunk{Thinking: delta.Thinking}) {
						return
					}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			if currentTool != nil {
				input := currentInput.String()
				if input == "" {
					input = "{}"
				}
				currentTool.Input = json.RawMessage(input)
				if !send(ctx, chunks, &agent.CompletionChunk{ToolCall: currentTool}) {
					return
				}
				currentTool = nil
				processed = true
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				outputTokens = int(messageDelta.Usage.OutputTokens)
			}
			processed = true

		case "message_stop":
			send(ctx, chunks, &agent.CompletionChunk{
				Done:         true,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
			})
			return

		case "error":
			send(ctx, chunks, &agent.CompletionChunk{
				Error: p.wrapError(errors.New("anthropic stream error"), model),
				Done:  true,
			})
			return
		}

		if processed {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				send(ctx, chunks, &agent.CompletionChunk{
					Error: p.wrapError(fmt.Errorf("malformed stream: %d consecutive empty events", emptyEvents), model),
					Done:  true,
				})
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		send(ctx, chunks, &agent.CompletionChunk{Error: p.wrapError(err, model), Done: true})
		return
	}
	send(ctx, chunks, &agent.CompletionChunk{
		Done:         true,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	})
}

func convertAnthropicMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		// System text travels on params.System, not in the turn list.
		if msg.Role == string(models.RoleSystem) {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == string(models.RoleAssistant) {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			// User and tool roles both arrive as user turns; tool results
			// are content blocks inside them.
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertAnthropicTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		param.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, param)
	}
	return result, nil
}

type anthropicErrorPayload struct {
	RequestID string `json:"request_id"`
	Error     struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := agent.AsProviderError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		providerErr := agent.NewProviderError("anthropic", model, err).WithStatus(apiErr.StatusCode)
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				if payload.Error.Message != "" {
					providerErr.Message = payload.Error.Message
				}
				if payload.Error.Type != "" {
					providerErr = providerErr.WithCode(payload.Error.Type)
				}
				if payload.RequestID != "" {
					providerErr = providerErr.WithRequestID(payload.RequestID)
				}
			}
		}
		return providerErr
	}
	return agent.NewProviderError("anthropic", model, err)
}

func (p *AnthropicProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.cfg.DefaultModel
}

func maxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return defaultMaxTokens
}

// send delivers a chunk unless the consumer has gone away with the context.
func send(ctx context.Context, chunks chan<- *agent.CompletionChunk, chunk *agent.CompletionChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ agent.Provider = (*AnthropicProvider)(nil)
