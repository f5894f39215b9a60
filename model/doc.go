// Package model defines the provider-agnostic abstractions for interacting
// with chat models inside ConvoFlow.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, core.ToolCall)
//   - Decode provider output into core content blocks at the boundary so
//     downstream logic never inspects raw payload shapes
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (llm service, graph) remain decoupled from vendor
// SDKs. The Registry holds the fixed ordered catalog of configured backends
// the fallback loop cycles through.
package model
