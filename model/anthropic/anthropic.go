// Package anthropic provides a model wrapper for the Anthropic Messages API
// behind the generic model.Model interface, including streaming and tool use.
// Thinking blocks are decoded into core.ReasoningBlock so they are discarded
// during normalization like every other reasoning fragment.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/model"
)

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	cfg    model.Config
}

// NewModel creates a new Anthropic model from a registry config.
func NewModel(cfg model.Config) *Model {
	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	return NewModelFromClient(&client, cfg)
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, cfg model.Config) *Model {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &Model{client: client, cfg: cfg}
}

// Info implements Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.cfg.Name, Provider: "anthropic", SupportsTools: true}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.cfg.Name),
		Messages:  m.buildMessages(req.Messages),
		MaxTokens: m.cfg.MaxTokens,
	}
	if m.cfg.Temperature != 0 {
		params.Temperature = anthropic.Float(m.cfg.Temperature)
	}
	if m.cfg.TopP != 0 {
		params.TopP = anthropic.Float(m.cfg.TopP)
	}
	system := req.System
	for _, msg := range req.Messages {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tdef := range req.Tools {
			tools = append(tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        tdef.Name,
					Description: anthropic.String(tdef.Description),
					InputSchema: buildInputSchema(tdef.Parameters),
				},
			})
		}
		params.Tools = tools
	}
	return params
}

// buildInputSchema maps a tool parameter schema onto the Messages API input
// schema, carrying over both properties and the required list. Schemas built
// in Go declare required as []string, schemas decoded from JSON as []any.
func buildInputSchema(parameters map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{}
	if parameters == nil {
		return schema
	}
	schema.Properties = parameters["properties"]
	switch required := parameters["required"].(type) {
	case []string:
		schema.Required = required
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

// buildMessages converts normalized messages to Anthropic message params.
// Tool results become user-role tool_result blocks per the Messages API.
func (m *Model) buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			continue // merged into the system parameter
		case core.RoleUser:
			if msg.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case core.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.Name))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			if msg.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	return messages
}

func (m *Model) handleNonStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		errCh <- m.wrapErr(err)
		return
	}
	out <- m.convertMessage(resp)
}

func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	acc := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			errCh <- m.wrapErr(err)
			return
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				out <- model.Response{
					Partial: true,
					Blocks:  []core.Block{core.TextBlock{Text: delta.Text}},
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- m.wrapErr(err)
		return
	}
	out <- m.convertMessage(&acc)
}

// convertMessage decodes a completed API message into a final response.
func (m *Model) convertMessage(msg *anthropic.Message) model.Response {
	var blocks []core.Block
	var toolCalls []core.ToolCall
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			if b.Text != "" {
				blocks = append(blocks, core.TextBlock{Text: b.Text})
			}
		case anthropic.ThinkingBlock:
			blocks = append(blocks, core.ReasoningBlock{})
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &args)
			}
			toolCalls = append(toolCalls, core.ToolCall{ID: b.ID, Name: b.Name, Args: args})
		}
	}
	finishReason := "stop"
	if msg.StopReason != "" {
		finishReason = string(msg.StopReason)
	}
	resp := model.Response{
		Partial:      false,
		Blocks:       blocks,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
	}
	if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
		resp.Usage = &model.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		}
	}
	return resp
}

// wrapErr classifies an SDK failure into a ProviderError.
func (m *Model) wrapErr(err error) error {
	kind := core.KindPermanent
	var apiErr *anthropic.Error
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode >= http.StatusInternalServerError:
			kind = core.KindTransient
		}
	case errors.Is(err, context.DeadlineExceeded):
		kind = core.KindTransient
	}
	return &core.ProviderError{Kind: kind, Provider: "anthropic", Model: m.cfg.Name, Err: err}
}
