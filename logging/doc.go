// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. The engine logs structured key/value events (llm call
// attempts, model switches, tool executions, memory updates) through this
// interface only.
package logging
