// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including streaming + function/tool calling). It
// adapts ConvoFlow's normalized Request/Response structures into the SDK's
// message format and back, decodes structured content payloads into core
// content blocks, and classifies SDK failures into core.ProviderError kinds
// so retry/fallback decisions stay vendor independent.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete tool calls when the finish reason is
// emitted. Internal helper (unexported).
type aggCall struct{ id, name, args string }

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	cfg    model.Config
}

// NewModel creates a new OpenAI model from a registry config.
func NewModel(cfg model.Config) *Model {
	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return NewModelFromClient(&client, cfg)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, cfg model.Config) *Model {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &Model{client: client, cfg: cfg}
}

// Info implements Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.cfg.Name, Provider: "openai", SupportsTools: true}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req, buildMessages(req))
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts normalized messages into OpenAI chat messages.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case core.RoleAssistant:
			if !msg.HasToolCalls() {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			messages = append(
				messages,
				openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				}},
			)
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			if msg.Content != "" {
				messages = append(messages, openai.UserMessage(msg.Content))
			}
		}
	}
	return messages
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.cfg.Name,
		MaxCompletionTokens: openai.Int(m.cfg.MaxTokens),
	}
	if m.cfg.ReasoningEffort != "" {
		// Reasoning models reject sampling parameters; effort replaces them.
		params.ReasoningEffort = shared.ReasoningEffort(m.cfg.ReasoningEffort)
	} else {
		if m.cfg.Temperature != 0 {
			params.Temperature = openai.Float(m.cfg.Temperature)
		}
		if m.cfg.TopP != 0 {
			params.TopP = openai.Float(m.cfg.TopP)
		}
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// handleStreaming processes streaming responses and forwards partial / final events.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var textBuilder strings.Builder
	toolAgg := map[int64]*aggCall{}
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				textBuilder.WriteString(ch.Delta.Content)
				out <- model.Response{
					Partial: true,
					Blocks:  []core.Block{core.TextBlock{Text: ch.Delta.Content}},
				}
			}
			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				ac.args += tc.Function.Arguments
			}
			if ch.FinishReason != "" {
				m.emitFinalChunk(ch.FinishReason, &textBuilder, toolAgg, out)
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- m.wrapErr(err)
	}
}

func (m *Model) emitFinalChunk(
	finishReason string,
	builder *strings.Builder,
	toolAgg map[int64]*aggCall,
	out chan<- model.Response,
) {
	var blocks []core.Block
	if builder.Len() > 0 {
		blocks = append(blocks, core.TextBlock{Text: builder.String()})
	}
	// Deltas arrive keyed by index; emit in index order so the tool calls
	// keep the order the model requested them in.
	indices := make([]int64, 0, len(toolAgg))
	for idx := range toolAgg {
		indices = append(indices, idx)
	}
	slices.Sort(indices)
	toolCalls := make([]core.ToolCall, 0, len(toolAgg))
	for _, idx := range indices {
		ac := toolAgg[idx]
		toolCalls = append(toolCalls, core.ToolCall{ID: ac.id, Name: ac.name, Args: decodeArgs(ac.args)})
	}
	out <- model.Response{
		Partial:      false,
		Blocks:       blocks,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
	}
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- m.wrapErr(err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- &core.ProviderError{
			Kind: core.KindPermanent, Provider: "openai", Model: m.cfg.Name,
			Err: fmt.Errorf("no choices returned"),
		}
		return
	}
	ch0 := resp.Choices[0]
	toolCalls := make([]core.ToolCall, 0, len(ch0.Message.ToolCalls))
	for _, tc := range ch0.Message.ToolCalls {
		toolCalls = append(toolCalls, core.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: decodeArgs(tc.Function.Arguments),
		})
	}
	final := model.Response{
		Partial:      false,
		Blocks:       DecodeContent(ch0.Message.Content),
		ToolCalls:    toolCalls,
		FinishReason: ch0.FinishReason,
	}
	if resp.Usage.TotalTokens > 0 {
		final.Usage = &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}
	out <- final
}

// DecodeContent decodes a raw completion payload into content blocks.
// Reasoning models may return a JSON array of typed blocks
// ([{"type":"reasoning","id":...},{"type":"text","text":...}]) instead of a
// plain string; both shapes are handled here so downstream logic only ever
// sees the tagged union. Exported for reuse by custom adapters.
func DecodeContent(content string) []core.Block {
	if content == "" {
		return nil
	}
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "[") {
		var raw []map[string]any
		if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
			blocks := make([]core.Block, 0, len(raw))
			for _, b := range raw {
				switch b["type"] {
				case "text":
					if text, ok := b["text"].(string); ok {
						blocks = append(blocks, core.TextBlock{Text: text})
					}
				case "reasoning":
					id, _ := b["id"].(string)
					blocks = append(blocks, core.ReasoningBlock{ID: id})
				}
			}
			return blocks
		}
	}
	return []core.Block{core.TextBlock{Text: content}}
}

// decodeArgs parses a JSON argument string into a map, tolerating empty or
// malformed payloads by returning an empty map.
func decodeArgs(args string) map[string]any {
	out := map[string]any{}
	if args == "" {
		return out
	}
	_ = json.Unmarshal([]byte(args), &out)
	return out
}

// wrapErr classifies an SDK failure into a ProviderError. Rate limits,
// timeouts and server faults are transient; everything else is permanent.
func (m *Model) wrapErr(err error) error {
	kind := core.KindPermanent
	var apiErr *openai.Error
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
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = core.KindTransient
		}
	}
	return &core.ProviderError{Kind: kind, Provider: "openai", Model: m.cfg.Name, Err: err}
}
