// Package postgres implements a durable checkpoint.Store on PostgreSQL using
// a process-wide pgx connection pool. The pool is created lazily on first
// use and shared by all conversations.
//
// Two deployment profiles control the failure mode of pool initialization:
// ProfileStrict propagates the error (development default), ProfileLenient
// logs a warning and degrades to no checkpointing so the service keeps
// answering without durable state.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Profile selects how pool-initialization failures are handled.
type Profile int

const (
	// ProfileStrict treats a pool initialization failure as fatal.
	ProfileStrict Profile = iota
	// ProfileLenient degrades to "no checkpointing" and continues.
	ProfileLenient
)

// checkpointTables is the fixed, ordered set of backing tables. DeleteAll
// iterates them in this order; referencing tables come first so ad-hoc
// foreign keys added by operators do not break deletion.
var checkpointTables = []string{"checkpoint_blobs", "checkpoint_writes", "checkpoints"}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	seq            BIGSERIAL PRIMARY KEY,
	thread_id      TEXT NOT NULL,
	memory_context TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS checkpoints_thread_idx ON checkpoints (thread_id, seq);

CREATE TABLE IF NOT EXISTS checkpoint_writes (
	seq          BIGSERIAL PRIMARY KEY,
	thread_id    TEXT NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	tool_calls   JSONB,
	tool_call_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS checkpoint_writes_thread_idx ON checkpoint_writes (thread_id, seq);

CREATE TABLE IF NOT EXISTS checkpoint_blobs (
	seq       BIGSERIAL PRIMARY KEY,
	thread_id TEXT NOT NULL,
	payload   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS checkpoint_blobs_thread_idx ON checkpoint_blobs (thread_id, seq);
`

// Options configure the store.
type Options struct {
	Profile  Profile
	MaxConns int32
	Logger   logging.Logger
}

// Store is a checkpoint.Store backed by PostgreSQL.
type Store struct {
	url  string
	opts Options

	mu       sync.Mutex
	pool     *pgxpool.Pool
	disabled bool
}

// New creates a Store for the given connection URL. No connection is made
// until the first operation.
func New(url string, optFns ...func(o *Options)) *Store {
	opts := Options{Profile: ProfileStrict, MaxConns: 10, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{url: url, opts: opts}
}

// getPool lazily creates the shared pool and runs schema setup. Returns
// (nil, nil) when the store degraded to disabled under the lenient profile.
func (s *Store) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return nil, nil
	}
	if s.pool != nil {
		return s.pool, nil
	}

	pool, err := s.initPool(ctx)
	if err != nil {
		s.opts.Logger.Error("checkpoint.pool_creation_failed", "error", err.Error())
		if s.opts.Profile == ProfileLenient {
			s.opts.Logger.Warn("checkpoint.continuing_without_checkpointing")
			s.disabled = true
			return nil, nil
		}
		return nil, err
	}
	s.pool = pool
	s.opts.Logger.Info("checkpoint.pool_created", "max_conns", s.opts.MaxConns)
	return s.pool, nil
}

func (s *Store) initPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(s.url)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres url: %w", err)
	}
	cfg.MaxConns = s.opts.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("checkpoint schema setup: %w", err)
	}
	return pool, nil
}

// Load reads the thread's message history and latest memory context. A
// thread with no rows yields a fresh empty state.
func (s *Store) Load(ctx context.Context, threadID string) (*core.ConversationState, error) {
	pool, err := s.getPool(ctx)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return core.NewConversationState(threadID), nil
	}

	state := core.NewConversationState(threadID)

	rows, err := pool.Query(ctx,
		`SELECT role, content, tool_calls, tool_call_id
		   FROM checkpoint_writes WHERE thread_id = $1 ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint writes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			msg      core.Message
			rawCalls []byte
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &rawCalls, &msg.ToolCallID); err != nil {
			return nil, fmt.Errorf("scanning checkpoint write: %w", err)
		}
		if len(rawCalls) > 0 {
			if err := json.Unmarshal(rawCalls, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls: %w", err)
			}
		}
		state.Messages = append(state.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading checkpoint writes: %w", err)
	}

	err = pool.QueryRow(ctx,
		`SELECT memory_context FROM checkpoints
		  WHERE thread_id = $1 ORDER BY seq DESC LIMIT 1`, threadID).
		Scan(&state.MemoryContext)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	return state, nil
}

// Append writes one turn atomically: a checkpoint row, one write row per
// message and a full snapshot blob.
func (s *Store) Append(ctx context.Context, threadID string, msgs []core.Message, memoryContext string) error {
	pool, err := s.getPool(ctx)
	if err != nil {
		return err
	}
	if pool == nil {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning checkpoint tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO checkpoints (thread_id, memory_context) VALUES ($1, $2)`,
		threadID, memoryContext); err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
	}
	for _, msg := range msgs {
		var rawCalls []byte
		if len(msg.ToolCalls) > 0 {
			rawCalls, err = json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("encoding tool calls: %w", err)
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO checkpoint_writes (thread_id, role, content, tool_calls, tool_call_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			threadID, msg.Role, msg.Content, rawCalls, msg.ToolCallID); err != nil {
			return fmt.Errorf("inserting checkpoint write: %w", err)
		}
	}

	snapshot, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO checkpoint_blobs (thread_id, payload) VALUES ($1, $2)`,
		threadID, snapshot); err != nil {
		return fmt.Errorf("inserting checkpoint blob: %w", err)
	}

	return tx.Commit(ctx)
}

// DeleteAll removes all rows for the thread id from each backing table in
// the fixed order. A failure on any table aborts the remaining deletions
// and propagates, so a partial deletion is possible.
func (s *Store) DeleteAll(ctx context.Context, threadID string) error {
	pool, err := s.getPool(ctx)
	if err != nil {
		return err
	}
	if pool == nil {
		return nil
	}

	for _, table := range checkpointTables {
		if _, err := pool.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE thread_id = $1", table), threadID); err != nil {
			s.opts.Logger.Error("checkpoint.clear_table_failed", "table", table, "error", err.Error())
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		s.opts.Logger.Info("checkpoint.table_cleared", "table", table, "thread_id", threadID)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}
