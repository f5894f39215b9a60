package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/convoflow/convoflow/core"
)

// MockModel is a scripted in-memory Model useful for tests & examples.
// Queued results are consumed in order; once the queue is drained the last
// result repeats. With an empty queue it echoes the last user message.
type MockModel struct {
	info Info

	mu     sync.Mutex
	queue  []mockResult
	calls  int
	record []Request
}

type mockResult struct {
	resp Response
	err  error
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock", SupportsTools: true}}
}

// EnqueueText queues a final text response.
func (m *MockModel) EnqueueText(text string) *MockModel {
	return m.enqueue(Response{
		Blocks:       []core.Block{core.TextBlock{Text: text}},
		FinishReason: "stop",
	}, nil)
}

// EnqueueBlocks queues a final response with explicit content blocks.
func (m *MockModel) EnqueueBlocks(blocks ...core.Block) *MockModel {
	return m.enqueue(Response{Blocks: blocks, FinishReason: "stop"}, nil)
}

// EnqueueToolCalls queues a final response requesting the given tool calls.
func (m *MockModel) EnqueueToolCalls(calls ...core.ToolCall) *MockModel {
	return m.enqueue(Response{ToolCalls: calls, FinishReason: "tool_calls"}, nil)
}

// EnqueueError queues a generation failure.
func (m *MockModel) EnqueueError(err error) *MockModel {
	return m.enqueue(Response{}, err)
}

func (m *MockModel) enqueue(resp Response, err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{resp: resp, err: err})
	return m
}

// Calls returns how many times Generate has been invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request seen by the model.
func (m *MockModel) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.record) == 0 {
		return Request{}
	}
	return m.record[len(m.record)-1]
}

// Generate implements Model; emits optional streaming rune chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls++
	m.record = append(m.record, req)
	var result mockResult
	switch {
	case len(m.queue) > 0:
		result = m.queue[0]
		if len(m.queue) > 1 {
			m.queue = m.queue[1:]
		}
	default:
		var last string
		for _, msg := range req.Messages {
			if msg.Role == core.RoleUser {
				last = msg.Content
			}
		}
		result = mockResult{resp: Response{
			Blocks:       []core.Block{core.TextBlock{Text: fmt.Sprintf("Mock response to: %s", last)}},
			FinishReason: "stop",
		}}
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if result.err != nil {
			errCh <- result.err
			return
		}
		if req.Stream {
			for _, r := range result.resp.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Blocks: []core.Block{core.TextBlock{Text: string(r)}}}:
				}
			}
		}
		final := result.resp
		final.Partial = false
		respCh <- final
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
