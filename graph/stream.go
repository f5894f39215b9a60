package graph

import (
	"context"
	"fmt"

	"github.com/convoflow/convoflow/core"
)

// StreamChunk is one element of a streamed turn. Content chunks arrive in
// generation order, followed by exactly one terminal chunk: Done on success
// or Err on failure. Nothing follows the terminal chunk.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// GetStreamResponse runs one turn like GetResponse but emits partial text as
// it is generated. The returned channel is closed after the terminal chunk.
// Consumers that stop reading should cancel ctx; chunk delivery respects it.
func (a *Agent) GetStreamResponse(ctx context.Context, msgs []core.Message, threadID, userID string) <-chan StreamChunk {
	out := make(chan StreamChunk, 16)

	go func() {
		defer close(out)

		state, memoryContext, err := a.prepareTurn(ctx, msgs, threadID, userID)
		if err != nil {
			a.deliver(ctx, out, StreamChunk{Err: err})
			return
		}

		turn, err := a.run(ctx, state, func(text string) {
			a.deliver(ctx, out, StreamChunk{Content: text})
		})
		if err != nil {
			a.logger.Error("graph.stream_turn_failed", "thread_id", threadID, "error", err.Error())
			a.deliver(ctx, out, StreamChunk{Err: err})
			return
		}

		a.persistTurn(ctx, threadID, userID, msgs, turn, memoryContext, state)
		a.deliver(ctx, out, StreamChunk{Done: true})
	}()

	return out
}

// deliver sends a chunk without letting a single delivery failure kill the
// stream: a panic during send is recovered and the chunk dropped, and a
// cancelled context stops delivery instead of blocking forever.
func (a *Agent) deliver(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("graph.stream_chunk_dropped", "recover", fmt.Sprintf("%v", r))
		}
	}()
	select {
	case out <- chunk:
	case <-ctx.Done():
	}
}
