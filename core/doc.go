// Package core defines the domain contracts shared by every layer of
// ConvoFlow: conversation messages and tool calls, the tagged content-block
// union produced by provider adapters, per-thread conversation state and the
// closed error taxonomy driving retry and fallback decisions.
//
// Keeping these types in one leaf package prevents dependency cycles between
// the model, llm, graph and storage packages; everything else imports core,
// core imports nothing.
package core
