package core

import "strings"

// Block represents one typed fragment of a provider response. Concrete block
// types implement the unexported isBlock marker enabling a closed set, so
// downstream logic switches over known shapes instead of inspecting raw
// provider payloads.
type Block interface{ isBlock() }

// TextBlock is a plain text fragment that contributes to the final message.
type TextBlock struct {
	Text string
}

func (TextBlock) isBlock() {}

// ReasoningBlock is an intermediate reasoning fragment emitted by reasoning
// models. It never contributes to the final message content; the id and
// summary are retained for debug logging only.
type ReasoningBlock struct {
	ID      string
	Summary []string
}

func (ReasoningBlock) isBlock() {}

// JoinBlocks normalizes a block sequence into final message content:
// reasoning blocks are discarded, text blocks concatenated in order.
func JoinBlocks(blocks []Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		if tb, ok := blk.(TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}
