package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/aide/internal/agent"
	"github.com/haasonsaas/aide/internal/backoff"
	"github.com/haasonsaas/aide/pkg/models"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
}

// OpenAIProvider streams chat completions from the OpenAI API. Tool calls
// stream as fragments and are accumulated per index until the finish
// reason marks them complete.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
	retry  backoff.Policy
}

// NewOpenAIProvider creates the provider. An empty API key is allowed for
// delayed configuration; Complete fails until it is set.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultOpenAIModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	p := &OpenAIProvider{
		cfg: cfg,
		retry: backoff.Policy{
			Initial: 500 * time.Millisecond,
			Max:     10 * time.Second,
			Factor:  2,
			Jitter:  0.1,
		},
	}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		p.client = openai.NewClientWithConfig(clientCfg)
	}
	return p
}

// Name implements agent.Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// SupportsTools implements agent.Provider.
func (p *OpenAIProvider) SupportsTools() bool { return true }

// Models implements agent.Provider.
func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000, Vision: true},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextWindow: 128000, Vision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextWindow: 128000, Vision: true},
	}
}

// Complete implements agent.Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Model),
		Messages: convertOpenAIMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff.SleepBackoff(ctx, p.retry, attempt); err != nil {
				return nil, err
			}
		}
		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		lastErr = agent.NewProviderError("openai", chatReq.Model, lastErr)
		if !agent.IsRetryable(lastErr) {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: retries exhausted: %w", lastErr)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

// processStream reads the SSE stream and converts deltas to chunks. OpenAI
// streams tool calls incrementally keyed by index: the first fragment has
// the id and name, later fragments append argument JSON, and the
// tool_calls finish reason marks the set complete.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	pending := make(map[int]*models.ToolCall)
	order := make([]int, 0, 4)

	// The stream carries no usage block; estimate output from characters.
	var outputChars int

	flush := func() bool {
		for _, idx := range order {
			tc := pending[idx]
			if tc == nil || tc.ID == "" || tc.Name == "" {
				continue
			}
			if len(tc.Input) == 0 {
				tc.Input = json.RawMessage("{}")
			}
			if !send(ctx, chunks, &agent.CompletionChunk{ToolCall: tc}) {
				return false
			}
		}
		pending = make(map[int]*models.ToolCall)
		order = order[:0]
		return true
	}

	for {
		select {
		case <-ctx.Done():
			send(ctx, chunks, &agent.CompletionChunk{Error: ctx.Err(), Done: true})
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !flush() {
					return
				}
				send(ctx, chunks, &agent.CompletionChunk{Done: true, OutputTokens: outputChars / 4})
				return
			}
			send(ctx, chunks, &agent.CompletionChunk{Error: agent.NewProviderError("openai", "", err), Done: true})
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			outputChars += len(choice.Delta.Content)
			if !send(ctx, chunks, &agent.CompletionChunk{Text: choice.Delta.Content}) {
				return
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &models.ToolCall{}
				pending[idx] = call
				order = append(order, idx)
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				call.Input = append(call.Input, tc.Function.Arguments...)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			if !flush() {
				return
			}
		}
	}
}

// convertOpenAIMessages maps neutral messages to the chat format. Unlike
// Anthropic, the system prompt is the first array entry and every tool
// result is its own role=tool message linked by the call id.
func convertOpenAIMessages(messages []agent.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case string(models.RoleSystem):
			// Folded into the leading system message by the caller.
			continue

		case string(models.RoleAssistant):
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}
			result = append(result, oaiMsg)

		case string(models.RoleTool):
			if len(msg.ToolResults) > 0 {
				for _, tr := range msg.ToolResults {
					result = append(result, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    tr.Content,
						ToolCallID: tr.ToolCallID,
					})
				}
				continue
			}
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleTool,
				Content: msg.Content,
			})

		default:
			result = append(result, userOpenAIMessage(msg))
		}
	}
	return result
}

// userOpenAIMessage renders a user turn, switching to multi-content parts
// when image attachments require vision input.
func userOpenAIMessage(msg agent.CompletionMessage) openai.ChatCompletionMessage {
	oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}

	hasImages := false
	for _, att := range msg.Attachments {
		if att.Type == "image" {
			hasImages = true
			break
		}
	}
	if !hasImages {
		oaiMsg.Content = msg.Content
		return oaiMsg
	}

	parts := make([]openai.ChatMessagePart, 0, len(msg.Attachments)+1)
	if msg.Content != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: msg.Content,
		})
	}
	for _, att := range msg.Attachments {
		if att.Type != "image" {
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    att.URL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	oaiMsg.MultiContent = parts
	return oaiMsg
}

func convertOpenAITools(tools []agent.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema(), &schemaMap); err != nil {
			// One bad schema must not break the rest of the tool set.
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

func (p *OpenAIProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.cfg.DefaultModel
}

var _ agent.Provider = (*OpenAIProvider)(nil)
