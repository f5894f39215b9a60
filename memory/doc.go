// Package memory defines the long-term semantic memory consumed by the agent
// graph: searched for relevant snippets before each turn and updated with the
// full transcript after it. The in-memory store below is a naive substring
// matcher suitable for tests and demos; swap in a vector/embedding backend
// for production retrieval without changing calling code.
package memory
