// Package graph implements the conversational execution engine: a two-state
// machine looping between generate (model call through the resilient llm
// service) and execute_tools (synchronous tool invocations) until the model
// produces a reply with no further tool requests.
//
// The Agent exposes the four operations consumed by the surrounding
// REST/CLI layer: GetResponse, GetStreamResponse, GetChatHistory and
// ClearChatHistory. Conversation state is loaded from and persisted to a
// checkpoint.Store per thread id; long-term memory is searched before each
// turn and updated by a supervised background task after it.
package graph
