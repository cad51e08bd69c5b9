package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/plan"
	"github.com/devlikebear/maestro/pkg/reason"
)

type fakeCache struct {
	entries map[string][]event.Event
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]event.Event{}}
}

func (c *fakeCache) Key(system string, history []Turn, message, model string, temperature float64) string {
	return system + "|" + message + "|" + model
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]event.Event, bool) {
	events, ok := c.entries[key]
	return events, ok
}

func (c *fakeCache) Put(ctx context.Context, key string, events []event.Event) {
	c.puts++
	c.entries[key] = events
}

type recordingMiddleware struct {
	starts, ends int
	seen         []event.Event
	suppress     event.Type
}

func (m *recordingMiddleware) OnRunStart(rc *RunContext) { m.starts++ }

func (m *recordingMiddleware) OnEvent(rc *RunContext, ev event.Event) *event.Event {
	m.seen = append(m.seen, ev)
	if m.suppress != "" && ev.Type == m.suppress {
		return nil
	}
	return &ev
}

func (m *recordingMiddleware) OnRunEnd(rc *RunContext) { m.ends++ }

func newTestRunner(t *testing.T, fake *fakeEngine, c Cache, requireApproval bool) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerConfig{
		Engine:              fake,
		Tools:               testRegistry(t),
		SystemPrompt:        "You are helpful.",
		RecursionLimit:      10,
		PlanMaxSteps:        10,
		PlanRequireApproval: requireApproval,
		ApprovalTimeout:     time.Second,
		Cache:               c,
		Model:               "fake",
		Logger:              zerolog.Nop(),
	})
	require.NoError(t, err)
	return r
}

func collectRun(t *testing.T, out <-chan event.Event) []event.Event {
	t.Helper()
	var events []event.Event
	for ev := range out {
		events = append(events, ev)
	}
	return events
}

func TestRunnerDirect(t *testing.T) {
	t.Run("should end a plain run with done", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{
			invocation("r1", delta("r1", "answer")),
		}}
		runner := newTestRunner(t, fake, nil, true)
		rc := NewRunContext("s1", zerolog.Nop())
		rc.Message = "hi"

		out := collectRun(t, runner.Run(context.Background(), rc, nil))

		types := eventTypes(out)
		require.NotEmpty(t, types)
		assert.Equal(t, event.TypeDone, types[len(types)-1])
		assert.Contains(t, types, event.TypeToken)
	})

	t.Run("should not emit done after a terminal error", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{{
			{Kind: reason.KindLLMStart, RunID: "r1"},
			{Kind: reason.KindError, RunID: "r1", Error: "provider down"},
		}}}
		runner := newTestRunner(t, fake, nil, true)
		rc := NewRunContext("s1", zerolog.Nop())

		out := collectRun(t, runner.Run(context.Background(), rc, nil))

		types := eventTypes(out)
		assert.Contains(t, types, event.TypeError)
		assert.NotContains(t, types, event.TypeDone)
	})
}

func TestRunnerMiddleware(t *testing.T) {
	t.Run("should invoke run start and end exactly once", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{invocation("r1")}}
		runner := newTestRunner(t, fake, nil, true)
		rc := NewRunContext("s1", zerolog.Nop())
		mw := &recordingMiddleware{}

		collectRun(t, runner.Run(context.Background(), rc, []Middleware{mw}))

		assert.Equal(t, 1, mw.starts)
		assert.Equal(t, 1, mw.ends)
	})

	t.Run("should invoke run end even when the context is cancelled", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{invocation("r1")}}
		runner := newTestRunner(t, fake, nil, true)
		rc := NewRunContext("s1", zerolog.Nop())
		mw := &recordingMiddleware{}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		collectRun(t, runner.Run(ctx, rc, []Middleware{mw}))

		assert.Equal(t, 1, mw.ends)
	})

	t.Run("should suppress events a middleware drops", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{
			invocation("r1", delta("r1", "secret")),
		}}
		runner := newTestRunner(t, fake, nil, true)
		rc := NewRunContext("s1", zerolog.Nop())
		mw := &recordingMiddleware{suppress: event.TypeToken}

		out := collectRun(t, runner.Run(context.Background(), rc, []Middleware{mw}))

		assert.NotContains(t, eventTypes(out), event.TypeToken)
		assert.Contains(t, eventTypes(mw.seen), event.TypeToken)
	})
}

func TestRunnerCache(t *testing.T) {
	t.Run("should record a finished run and replay it verbatim", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{
			invocation("r1", delta("r1", "cached answer")),
		}}
		c := newFakeCache()
		runner := newTestRunner(t, fake, c, true)

		rc1 := NewRunContext("s1", zerolog.Nop())
		rc1.Message = "what"
		first := collectRun(t, runner.Run(context.Background(), rc1, nil))
		assert.Equal(t, 1, c.puts)

		rc2 := NewRunContext("s2", zerolog.Nop())
		rc2.Message = "what"
		second := collectRun(t, runner.Run(context.Background(), rc2, nil))

		assert.Equal(t, first, second)
		assert.Len(t, fake.streamCalls, 1, "cache hit must not invoke the engine")
	})

	t.Run("should bypass middleware on replay", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{
			invocation("r1", delta("r1", "hello")),
		}}
		c := newFakeCache()
		runner := newTestRunner(t, fake, c, true)

		rc1 := NewRunContext("s1", zerolog.Nop())
		rc1.Message = "m"
		collectRun(t, runner.Run(context.Background(), rc1, nil))

		mw := &recordingMiddleware{}
		rc2 := NewRunContext("s2", zerolog.Nop())
		rc2.Message = "m"
		out := collectRun(t, runner.Run(context.Background(), rc2, []Middleware{mw}))

		assert.NotEmpty(t, out)
		assert.Empty(t, mw.seen)
		assert.Equal(t, 1, mw.starts)
		assert.Equal(t, 1, mw.ends)
	})
}

func TestRunnerApprovalGate(t *testing.T) {
	capturedPlan := func(t *testing.T, rc *RunContext) {
		t.Helper()
		p, err := plan.New("Goal", []string{"One"})
		require.NoError(t, err)
		rc.SetPlan(p)
	}

	t.Run("should request approval on the side channel and proceed when approved", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{
			invocation("r1"),
			invocation("r2", delta("r2", "step output")),
		}}
		runner := newTestRunner(t, fake, nil, true)
		rc := NewRunContext("s1", zerolog.Nop())
		capturedPlan(t, rc)
		rc.ResolveApproval(true)

		out := collectRun(t, runner.Run(context.Background(), rc, nil))

		var sawRequest bool
		for _, ev := range drainPlanEvents(rc) {
			if ev.Type == event.TypePlanApprovalRequest {
				sawRequest = true
			}
		}
		assert.True(t, sawRequest)

		types := eventTypes(out)
		assert.Equal(t, event.TypeDone, types[len(types)-1])
		assert.Len(t, fake.streamCalls, 2, "plan execution must follow approval")
	})

	t.Run("should emit exactly one token and done on rejection", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{invocation("r1")}}
		runner := newTestRunner(t, fake, nil, true)
		rc := NewRunContext("s1", zerolog.Nop())
		capturedPlan(t, rc)
		rc.ResolveApproval(false)

		out := collectRun(t, runner.Run(context.Background(), rc, nil))

		var tokens, dones int
		for _, ev := range out {
			switch ev.Type {
			case event.TypeToken:
				tokens++
				assert.Equal(t, PlanDeclinedMessage, ev.Content)
			case event.TypeDone:
				dones++
			}
		}
		assert.Equal(t, 1, tokens)
		assert.Equal(t, 1, dones)
		assert.Len(t, fake.streamCalls, 1, "rejected plans must not execute")
	})

	t.Run("should skip the gate when approval is not required", func(t *testing.T) {
		fake := &fakeEngine{scripts: [][]reason.RawEvent{
			invocation("r1"),
			invocation("r2"),
		}}
		runner := newTestRunner(t, fake, nil, false)
		rc := NewRunContext("s1", zerolog.Nop())
		capturedPlan(t, rc)

		out := collectRun(t, runner.Run(context.Background(), rc, nil))

		assert.Len(t, fake.streamCalls, 2)
		for _, ev := range drainPlanEvents(rc) {
			assert.NotEqual(t, event.TypePlanApprovalRequest, ev.Type)
		}
		assert.Equal(t, event.TypeDone, eventTypes(out)[len(out)-1])
	})
}
