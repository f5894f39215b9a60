package graph

import (
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/convoflow/convoflow/checkpoint"
	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/llm"
	"github.com/convoflow/convoflow/logging"
	"github.com/convoflow/convoflow/memory"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/tool"
	"github.com/google/uuid"
)

// ErrMaxIterations is returned when the generate/execute_tools loop exceeds
// the configured iteration cap within one turn.
var ErrMaxIterations = errors.New("tool-call loop exceeded maximum iterations")

// Options configure the Agent. Unset stores default to in-memory
// implementations; the logger defaults to NoOp.
type Options struct {
	Tools       *tool.Registry
	Checkpoints checkpoint.Store
	Memory      memory.Store
	Logger      logging.Logger

	// SystemPrompt is a text/template with .LongTermMemory and .Date fields.
	SystemPrompt string
	// MaxIterations caps generate steps per turn. A model that perpetually
	// requests tools hits this cap instead of looping forever.
	MaxIterations int
	// HistoryBudget bounds the rune count of history sent to the model;
	// older messages are trimmed first.
	HistoryBudget int
	// MemoryUpdateTimeout bounds the background memory update task.
	MemoryUpdateTimeout time.Duration
}

// Agent drives the conversational state machine.
type Agent struct {
	llm         *llm.Service
	tools       *tool.Registry
	checkpoints checkpoint.Store
	memory      memory.Store
	logger      logging.Logger
	prompt      *template.Template
	opts        Options
}

// New creates an Agent around a resilient llm service.
func New(llmService *llm.Service, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		Tools:               tool.NewRegistry(),
		Checkpoints:         checkpoint.NewInMemoryStore(),
		Memory:              memory.NewInMemoryStore(),
		Logger:              logging.NoOpLogger{},
		SystemPrompt:        DefaultSystemPrompt,
		MaxIterations:       10,
		HistoryBudget:       8000,
		MemoryUpdateTimeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	prompt, err := parsePrompt(opts.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("parsing system prompt: %w", err)
	}

	a := &Agent{
		llm:         llmService,
		tools:       opts.Tools,
		checkpoints: opts.Checkpoints,
		memory:      opts.Memory,
		logger:      opts.Logger,
		prompt:      prompt,
		opts:        opts,
	}
	a.logger.Info("graph.agent_initialized",
		"model", llmService.ActiveModel(),
		"tool_count", opts.Tools.Len(),
		"max_iterations", opts.MaxIterations)
	return a, nil
}

// GetResponse runs one full turn to its terminal state and returns the
// finalized user/assistant view of the conversation. The turn is persisted
// through the checkpoint store and a background memory update is scheduled
// before returning.
func (a *Agent) GetResponse(ctx context.Context, msgs []core.Message, threadID, userID string) ([]core.Message, error) {
	state, memoryContext, err := a.prepareTurn(ctx, msgs, threadID, userID)
	if err != nil {
		return nil, err
	}

	turn, err := a.run(ctx, state, nil)
	if err != nil {
		a.logger.Error("graph.turn_failed", "thread_id", threadID, "error", err.Error())
		return nil, err
	}

	a.persistTurn(ctx, threadID, userID, msgs, turn, memoryContext, state)
	return state.ConversationHistory(), nil
}

// GetChatHistory returns the conversation for a thread id, filtered to user
// and assistant messages.
func (a *Agent) GetChatHistory(ctx context.Context, threadID string) ([]core.Message, error) {
	state, err := a.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return state.ConversationHistory(), nil
}

// ClearChatHistory removes all persisted state for a thread id.
func (a *Agent) ClearChatHistory(ctx context.Context, threadID string) error {
	if err := a.checkpoints.DeleteAll(ctx, threadID); err != nil {
		a.logger.Error("graph.clear_history_failed", "thread_id", threadID, "error", err.Error())
		return err
	}
	a.logger.Info("graph.history_cleared", "thread_id", threadID)
	return nil
}

// prepareTurn loads the thread state, resolves long-term memory context and
// appends the incoming messages to a working copy.
func (a *Agent) prepareTurn(ctx context.Context, msgs []core.Message, threadID, userID string) (*core.ConversationState, string, error) {
	state, err := a.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, "", err
	}

	memoryContext := a.relevantMemory(ctx, userID, lastUserContent(msgs))
	state.MemoryContext = memoryContext
	state.Append(msgs...)
	return state, memoryContext, nil
}

// persistTurn appends the turn's messages to durable state and schedules the
// background memory update. Persistence failures are logged, not fatal: the
// reply already exists and the caller should receive it.
func (a *Agent) persistTurn(ctx context.Context, threadID, userID string, incoming, generated []core.Message, memoryContext string, state *core.ConversationState) {
	written := make([]core.Message, 0, len(incoming)+len(generated))
	written = append(written, incoming...)
	written = append(written, generated...)
	if err := a.checkpoints.Append(ctx, threadID, written, memoryContext); err != nil {
		a.logger.Error("graph.checkpoint_write_failed", "thread_id", threadID, "error", err.Error())
	}
	a.scheduleMemoryUpdate(userID, state.Messages, map[string]any{
		"session_id": threadID,
		"user_id":    userID,
	})
}

// run executes the state machine until the model answers without tool
// requests. Returns the messages generated during this turn in order. When
// onDelta is non-nil every generate step streams its text through it.
func (a *Agent) run(ctx context.Context, state *core.ConversationState, onDelta func(string)) ([]core.Message, error) {
	runID := uuid.NewString()
	var turn []core.Message

	for iteration := 0; ; iteration++ {
		if iteration >= a.opts.MaxIterations {
			a.logger.Error("graph.max_iterations_exceeded", "run_id", runID, "iterations", iteration)
			return turn, ErrMaxIterations
		}

		req, err := a.buildRequest(state)
		if err != nil {
			return turn, err
		}

		resp, err := a.llm.Call(ctx, req, &llm.CallOptions{OnDelta: onDelta})
		if err != nil {
			return turn, err
		}

		assistant := core.AssistantMessage(resp.Text(), resp.ToolCalls...)
		state.Append(assistant)
		turn = append(turn, assistant)
		a.logger.Info("graph.response_generated",
			"run_id", runID,
			"thread_id", state.ThreadID,
			"model", a.llm.ActiveModel(),
			"tool_calls", len(assistant.ToolCalls))

		if !assistant.HasToolCalls() {
			return turn, nil
		}

		results, err := a.executeTools(ctx, runID, assistant.ToolCalls)
		state.Append(results...)
		turn = append(turn, results...)
		if err != nil {
			return turn, err
		}
	}
}

// executeTools invokes every requested tool synchronously, in request order,
// producing one correlated tool message per call. A name missing from the
// registry aborts the turn with *core.ToolNotFoundError; results of calls
// executed before the failure are still returned so they reach the state.
func (a *Agent) executeTools(ctx context.Context, runID string, calls []core.ToolCall) ([]core.Message, error) {
	results := make([]core.Message, 0, len(calls))
	for _, call := range calls {
		impl, ok := a.tools.Get(call.Name)
		if !ok {
			a.logger.Error("graph.tool_not_found", "run_id", runID, "tool", call.Name)
			return results, &core.ToolNotFoundError{Name: call.Name}
		}

		start := time.Now()
		output, err := impl.Call(ctx, call.Args)
		a.logger.Info("graph.tool_executed",
			"run_id", runID,
			"tool", call.Name,
			"tool_call_id", call.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err != nil)
		if err != nil {
			return results, fmt.Errorf("tool %s failed: %w", call.Name, err)
		}

		results = append(results, core.ToolMessage(output, call.ID))
	}
	return results, nil
}

// buildRequest composes the model request: rendered system prompt, trimmed
// history and the registered tool definitions.
func (a *Agent) buildRequest(state *core.ConversationState) (model.Request, error) {
	memoryContext := state.MemoryContext
	if memoryContext == "" {
		memoryContext = memory.NoRelevantMemory
	}
	system, err := renderPrompt(a.prompt, memoryContext)
	if err != nil {
		return model.Request{}, fmt.Errorf("rendering system prompt: %w", err)
	}

	req := model.Request{
		System:   system,
		Messages: trimMessages(state.Messages, a.opts.HistoryBudget),
	}
	for _, t := range a.tools.All() {
		req.Tools = append(req.Tools, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return req, nil
}

// relevantMemory searches long-term memory for the user; failures degrade to
// the placeholder instead of failing the turn.
func (a *Agent) relevantMemory(ctx context.Context, userID, query string) string {
	if userID == "" {
		return memory.NoRelevantMemory
	}
	results, err := a.memory.Search(ctx, userID, query)
	if err != nil {
		a.logger.Error("graph.memory_search_failed", "user_id", userID, "error", err.Error())
		return memory.NoRelevantMemory
	}
	return memory.Context(results)
}

// scheduleMemoryUpdate spawns the best-effort background memory update. The
// task is supervised: panics are recovered and errors logged, but nothing is
// ever surfaced to the caller and no cancellation propagates from the
// parent request.
func (a *Agent) scheduleMemoryUpdate(userID string, msgs []core.Message, metadata map[string]any) {
	if userID == "" {
		return
	}
	transcript := make([]core.Message, len(msgs))
	copy(transcript, msgs)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("graph.memory_update_panic", "user_id", userID, "recover", fmt.Sprintf("%v", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.MemoryUpdateTimeout)
		defer cancel()
		if err := a.memory.Add(ctx, userID, transcript, metadata); err != nil {
			a.logger.Error("graph.memory_update_failed", "user_id", userID, "error", err.Error())
			return
		}
		a.logger.Info("graph.memory_updated", "user_id", userID)
	}()
}

// trimMessages keeps the most recent messages within the rune budget,
// advancing the window start to a user message so the model never sees a
// conversation opening mid-exchange. The latest message always survives.
func trimMessages(msgs []core.Message, budget int) []core.Message {
	if budget <= 0 || len(msgs) == 0 {
		return msgs
	}
	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		total += len([]rune(msgs[i].Content))
		if total > budget && start < len(msgs) {
			break
		}
		start = i
	}
	// Start on a user message when one exists inside the window.
	for i := start; i < len(msgs)-1; i++ {
		if msgs[i].Role == core.RoleUser {
			start = i
			break
		}
	}
	return msgs[start:]
}

// lastUserContent returns the content of the most recent user message.
func lastUserContent(msgs []core.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return msgs[i].Content
		}
	}
	if len(msgs) > 0 {
		return msgs[len(msgs)-1].Content
	}
	return ""
}
