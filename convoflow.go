// Package convoflow provides a high-level façade over the conversational
// execution engine: model registry with circular fallback, resilient llm
// service, tool execution, durable checkpointing and long-term memory.
// Most applications interact with this package by:
//  1. Creating a ConvoFlow via New() (optionally overriding default
//     in-memory services)
//  2. Registering tools
//  3. Running turns with GetResponse or GetStreamResponse
//
// All defaults are safe for local development and testing; production
// deployments typically supply a PostgreSQL checkpoint store and a
// structured logger. NewFromEnv wires both from environment settings.
package convoflow

import (
	"context"
	"fmt"

	"github.com/convoflow/convoflow/checkpoint"
	"github.com/convoflow/convoflow/checkpoint/postgres"
	"github.com/convoflow/convoflow/config"
	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/graph"
	"github.com/convoflow/convoflow/llm"
	"github.com/convoflow/convoflow/logging"
	"github.com/convoflow/convoflow/memory"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/model/anthropic"
	"github.com/convoflow/convoflow/model/openai"
	"github.com/convoflow/convoflow/tool"
)

// DefaultModelFactory builds provider clients from registry configs. An
// empty provider defaults to OpenAI.
func DefaultModelFactory(cfg model.Config) (model.Model, error) {
	switch cfg.Provider {
	case "", "openai":
		return openai.NewModel(cfg), nil
	case "anthropic":
		return anthropic.NewModel(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// Options configures the ConvoFlow instance.
type Options struct {
	// Models defines the registry catalog in fallback order. Defaults to
	// the built-in OpenAI catalog using APIKey.
	Models []model.Config
	// APIKey is used by the default catalog when Models is unset.
	APIKey string
	// DefaultModel selects the starting model; empty keeps the first entry.
	DefaultModel string
	// ModelFactory constructs provider clients; defaults to
	// DefaultModelFactory.
	ModelFactory model.Factory
	// RetryPolicy bounds the per-model retry loop.
	RetryPolicy llm.RetryPolicy

	// Tools available to the model during turns.
	Tools *tool.Registry

	// Stores (default to in-memory implementations if not provided)
	Checkpoints checkpoint.Store
	Memory      memory.Store

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// SystemPrompt overrides the baseline instruction template.
	SystemPrompt string
	// MaxIterations caps generate steps per turn (0 keeps the default).
	MaxIterations int
}

// ConvoFlow is the high-level façade aggregating the underlying engine and
// services.
type ConvoFlow struct {
	opts  Options
	llm   *llm.Service
	agent *graph.Agent
}

// New creates a ConvoFlow instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*ConvoFlow, error) {
	opts := Options{
		ModelFactory: DefaultModelFactory,
		RetryPolicy:  llm.DefaultRetryPolicy(),
		Tools:        tool.NewRegistry(),
		Checkpoints:  checkpoint.NewInMemoryStore(),
		Memory:       memory.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
		SystemPrompt: graph.DefaultSystemPrompt,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	configs := opts.Models
	if len(configs) == 0 {
		configs = model.DefaultConfigs(opts.APIKey, 2000)
	}
	registry, err := model.NewRegistry(opts.ModelFactory, configs)
	if err != nil {
		return nil, fmt.Errorf("building model registry: %w", err)
	}

	svc := llm.NewService(registry, func(o *llm.Options) {
		o.DefaultModel = opts.DefaultModel
		o.Policy = opts.RetryPolicy
		o.Logger = opts.Logger
	})

	agent, err := graph.New(svc, func(o *graph.Options) {
		o.Tools = opts.Tools
		o.Checkpoints = opts.Checkpoints
		o.Memory = opts.Memory
		o.Logger = opts.Logger
		o.SystemPrompt = opts.SystemPrompt
		if opts.MaxIterations > 0 {
			o.MaxIterations = opts.MaxIterations
		}
	})
	if err != nil {
		return nil, err
	}

	return &ConvoFlow{opts: opts, llm: svc, agent: agent}, nil
}

// NewFromEnv builds a ConvoFlow from environment settings: the default
// model catalog, retry bounds and, when POSTGRES_URL is set, a durable
// checkpoint store whose failure posture follows the deployment tier.
func NewFromEnv(optFns ...func(o *Options)) (*ConvoFlow, error) {
	settings, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	return New(func(o *Options) {
		o.APIKey = settings.LLMAPIKey
		o.Models = model.DefaultConfigs(settings.LLMAPIKey, settings.MaxTokens)
		o.DefaultModel = settings.DefaultModel
		o.RetryPolicy = llm.RetryPolicy{
			MaxAttempts: settings.MaxRetries,
			Multiplier:  2,
			MinWait:     settings.RetryMinWait,
			MaxWait:     settings.RetryMaxWait,
		}
		for _, fn := range optFns {
			fn(o)
		}
		if settings.PostgresURL != "" {
			o.Checkpoints = postgres.New(settings.PostgresURL, func(po *postgres.Options) {
				po.Profile = settings.CheckpointProfile()
				po.Logger = o.Logger
			})
		}
	})
}

// RegisterTool adds a tool to the registry exposed to the model.
func (c *ConvoFlow) RegisterTool(t tool.Tool) { c.opts.Tools.Register(t) }

// ActiveModel returns the name of the model currently used for generation.
func (c *ConvoFlow) ActiveModel() string { return c.llm.ActiveModel() }

// GetResponse runs one turn to completion and returns the user/assistant
// view of the conversation.
func (c *ConvoFlow) GetResponse(ctx context.Context, msgs []core.Message, threadID, userID string) ([]core.Message, error) {
	return c.agent.GetResponse(ctx, msgs, threadID, userID)
}

// GetStreamResponse runs one turn emitting partial text as it is generated.
// The channel closes after a single terminal chunk (Done or Err).
func (c *ConvoFlow) GetStreamResponse(ctx context.Context, msgs []core.Message, threadID, userID string) <-chan graph.StreamChunk {
	return c.agent.GetStreamResponse(ctx, msgs, threadID, userID)
}

// GetChatHistory returns the persisted conversation for a thread id.
func (c *ConvoFlow) GetChatHistory(ctx context.Context, threadID string) ([]core.Message, error) {
	return c.agent.GetChatHistory(ctx, threadID)
}

// ClearChatHistory removes all persisted state for a thread id.
func (c *ConvoFlow) ClearChatHistory(ctx context.Context, threadID string) error {
	return c.agent.ClearChatHistory(ctx, threadID)
}
