// Package llm implements the resilient invocation service sitting between
// the agent graph and the model registry. Every call runs a bounded
// per-model retry with exponential backoff for transient failures, then
// falls back to the next model in circular registry order until either a
// model succeeds or every registered model has been tried once.
//
// The service is sticky: after a successful fallback, subsequent calls start
// from the model that last succeeded rather than the configured default.
// Retries are strictly sequential to honor backoff ordering and avoid
// duplicate billable calls.
package llm
