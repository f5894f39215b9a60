package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Multiplier: 1, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

// newTestService builds a registry of pre-scripted mocks plus a service.
func newTestService(t *testing.T, mocks map[string]*model.MockModel, order []string, optFns ...func(o *Options)) *Service {
	t.Helper()
	factory := func(cfg model.Config) (model.Model, error) {
		if m, ok := mocks[cfg.Name]; ok {
			return m, nil
		}
		return model.NewMockModel(cfg.Name), nil
	}
	configs := make([]model.Config, len(order))
	for i, n := range order {
		configs[i] = model.Config{Name: n}
	}
	registry, err := model.NewRegistry(factory, configs)
	require.NoError(t, err)

	fns := append([]func(o *Options){func(o *Options) { o.Policy = fastPolicy() }}, optFns...)
	return NewService(registry, fns...)
}

func transientErr(modelName string) error {
	return &core.ProviderError{Kind: core.KindTransient, Provider: "mock", Model: modelName, Err: errors.New("429 rate limited")}
}

func permanentErr(modelName string) error {
	return &core.ProviderError{Kind: core.KindPermanent, Provider: "mock", Model: modelName, Err: errors.New("400 bad request")}
}

func TestService_AllTransientFailuresExhaustEveryModelOnce(t *testing.T) {
	names := []string{"a", "b", "c"}
	mocks := map[string]*model.MockModel{}
	for _, n := range names {
		mocks[n] = model.NewMockModel(n)
		mocks[n].EnqueueError(transientErr(n))
	}
	svc := newTestService(t, mocks, names)

	_, err := svc.Call(context.Background(), model.Request{Messages: []core.Message{core.UserMessage("hi")}}, nil)
	require.Error(t, err)

	var exhausted *core.AllModelsExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.ModelsTried)
	assert.ErrorAs(t, err, new(*core.ProviderError))

	// Each model retried up to MaxAttempts, and no model tried twice at the
	// outer level: exactly MaxAttempts generate calls per model.
	for _, n := range names {
		assert.Equal(t, 3, mocks[n].Calls(), "model %s", n)
	}
}

func TestService_FallbackOrderIsCircularFromStartingIndex(t *testing.T) {
	names := []string{"a", "b", "c"}
	mocks := map[string]*model.MockModel{}
	for _, n := range names {
		mocks[n] = model.NewMockModel(n)
		mocks[n].EnqueueError(permanentErr(n))
	}
	svc := newTestService(t, mocks, names, func(o *Options) { o.DefaultModel = "b" })

	_, err := svc.Call(context.Background(), model.Request{}, nil)
	require.Error(t, err)

	// Permanent errors skip the inner retry entirely: one call per model.
	for _, n := range names {
		assert.Equal(t, 1, mocks[n].Calls(), "model %s", n)
	}
	// Starting at b, the circular order is b, c, a and ends back before b.
	assert.Equal(t, "a", svc.ActiveModel())
}

func TestService_StickyFallbackStaysOnSucceedingModel(t *testing.T) {
	mocks := map[string]*model.MockModel{
		"a": model.NewMockModel("a"),
		"b": model.NewMockModel("b"),
	}
	mocks["a"].EnqueueError(permanentErr("a"))
	mocks["b"].EnqueueText("hello from b")
	svc := newTestService(t, mocks, []string{"a", "b"})

	resp, err := svc.Call(context.Background(), model.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello from b", resp.Text())
	assert.Equal(t, "b", svc.ActiveModel())

	// Second call starts from b directly; a is not touched again.
	mocks["b"].EnqueueText("again")
	_, err = svc.Call(context.Background(), model.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, mocks["a"].Calls())
	assert.Equal(t, 2, mocks["b"].Calls())
}

func TestService_TransientErrorsRetriedThenFallback(t *testing.T) {
	mocks := map[string]*model.MockModel{
		"a": model.NewMockModel("a"),
		"b": model.NewMockModel("b"),
	}
	mocks["a"].EnqueueError(transientErr("a"))
	mocks["b"].EnqueueText("recovered")
	svc := newTestService(t, mocks, []string{"a", "b"})

	resp, err := svc.Call(context.Background(), model.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text())
	assert.Equal(t, 3, mocks["a"].Calls(), "transient failures retried MaxAttempts times")
	assert.Equal(t, 1, mocks["b"].Calls())
}

func TestService_ModelNameHintPinsIndex(t *testing.T) {
	mocks := map[string]*model.MockModel{
		"a": model.NewMockModel("a"),
		"b": model.NewMockModel("b"),
	}
	mocks["b"].EnqueueText("pinned")
	svc := newTestService(t, mocks, []string{"a", "b"})

	resp, err := svc.Call(context.Background(), model.Request{}, &CallOptions{ModelName: "b"})
	require.NoError(t, err)
	assert.Equal(t, "pinned", resp.Text())
	assert.Equal(t, 0, mocks["a"].Calls())
}

func TestService_UnknownModelHintKeepsCurrentIndex(t *testing.T) {
	mocks := map[string]*model.MockModel{"a": model.NewMockModel("a")}
	mocks["a"].EnqueueText("default")
	svc := newTestService(t, mocks, []string{"a"})

	resp, err := svc.Call(context.Background(), model.Request{}, &CallOptions{ModelName: "does-not-exist"})
	require.NoError(t, err)
	assert.Equal(t, "default", resp.Text())
}

func TestService_UnknownDefaultModelFallsBackToFirst(t *testing.T) {
	mocks := map[string]*model.MockModel{"a": model.NewMockModel("a")}
	svc := newTestService(t, mocks, []string{"a"}, func(o *Options) { o.DefaultModel = "nope" })
	assert.Equal(t, "a", svc.ActiveModel())
}

// cancellingModel cancels the caller's context during generation, then
// fails. Simulates a request torn down while fallback is in progress.
type cancellingModel struct {
	name   string
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingModel) Generate(_ context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	c.calls++
	c.cancel()
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	errCh <- permanentErr(c.name)
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (c *cancellingModel) Info() model.Info {
	return model.Info{Name: c.name, Provider: "mock"}
}

func TestService_CancellationStopsFallbackWithContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	models := map[string]*cancellingModel{
		"a": {name: "a", cancel: cancel},
		"b": {name: "b", cancel: cancel},
	}
	factory := func(cfg model.Config) (model.Model, error) { return models[cfg.Name], nil }
	registry, err := model.NewRegistry(factory, []model.Config{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	svc := NewService(registry, func(o *Options) { o.Policy = fastPolicy() })

	_, err = svc.Call(ctx, model.Request{}, nil)
	require.Error(t, err)

	// Cancellation mid-fallback is not exhaustion.
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorAs(t, err, new(*core.AllModelsExhaustedError))
	assert.Equal(t, 1, models["a"].calls)
	assert.Equal(t, 0, models["b"].calls, "no fallback after cancellation")
}

func TestService_StreamingForwardsDeltas(t *testing.T) {
	mocks := map[string]*model.MockModel{"a": model.NewMockModel("a")}
	mocks["a"].EnqueueText("hey")
	svc := newTestService(t, mocks, []string{"a"})

	var sb strings.Builder
	resp, err := svc.Call(context.Background(), model.Request{}, &CallOptions{
		OnDelta: func(text string) { sb.WriteString(text) },
	})
	require.NoError(t, err)
	assert.Equal(t, "hey", sb.String())
	assert.Equal(t, "hey", resp.Text())
}

func TestService_NormalizesReasoningBlocks(t *testing.T) {
	mocks := map[string]*model.MockModel{"a": model.NewMockModel("a")}
	mocks["a"].EnqueueBlocks(core.ReasoningBlock{ID: "r1"}, core.TextBlock{Text: "hello"})
	svc := newTestService(t, mocks, []string{"a"})

	resp, err := svc.Call(context.Background(), model.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
}
