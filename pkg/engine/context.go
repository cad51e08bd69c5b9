// Package engine is the orchestration core: per-run context, the event
// stream adapter with its reasoning-text filter, the Direct and Plan
// execution modes, the Replanner, the middleware pipeline, and the
// top-level Runner.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/plan"
)

// ToolCallRecord captures one tool invocation within a turn. It is filled
// in two phases: tool and input at start, output at completion.
type ToolCallRecord struct {
	CallID string `json:"call_id,omitempty"`
	Tool   string `json:"tool"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

// Turn is one prior conversation turn.
type Turn struct {
	Role      string           `json:"role"` // "user" or "assistant"
	Content   string           `json:"content"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
}

// RunContext is the per-invocation state container. It is created per
// request, mutated by the Runner and modes, and discarded once the
// response is fully flushed.
//
// The plan-event channel is the designated crossing point for signals that
// may arrive from a foreign goroutine (tool callbacks, approval
// resolution): publishing is a single thread-safe deliver operation, and
// publish failures are logged and swallowed so they never propagate into
// the caller's control flow.
type RunContext struct {
	SessionID string
	Debug     bool
	Stream    bool

	// Set by the Runner before mode execution.
	Message string
	History []Turn

	logger zerolog.Logger

	mu   sync.Mutex
	plan *plan.Plan

	planEvents chan event.Event
	approval   chan bool
	approveOne sync.Once
}

// NewRunContext creates a fresh per-request context.
func NewRunContext(sessionID string, logger zerolog.Logger) *RunContext {
	return &RunContext{
		SessionID:  sessionID,
		Stream:     true,
		logger:     logger.With().Str("component", "runctx").Str("session_id", sessionID).Logger(),
		planEvents: make(chan event.Event, 128),
		approval:   make(chan bool, 1),
	}
}

// SetPlan stores the captured plan. At most one plan is active per run;
// the plan-declaration tool may be invoked from a foreign goroutine.
func (rc *RunContext) SetPlan(p *plan.Plan) {
	rc.mu.Lock()
	rc.plan = p
	rc.mu.Unlock()
}

// Plan returns the active plan, or nil when none was captured.
func (rc *RunContext) Plan() *plan.Plan {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.plan
}

// EmitPlanEvent is the sole publish point for plan side-channel events.
// It is safe to call from any goroutine. Failure to publish (channel full
// or run already flushed) is logged and swallowed.
func (rc *RunContext) EmitPlanEvent(ev event.Event) {
	select {
	case rc.planEvents <- ev:
	default:
		rc.logger.Warn().
			Str("event_type", string(ev.Type)).
			Msg("Dropping plan event: side channel unavailable")
	}
}

// PlanEvents exposes the side channel for the delivery layer to drain.
func (rc *RunContext) PlanEvents() <-chan event.Event {
	return rc.planEvents
}

// ResolveApproval delivers the user's approval decision. Only the first
// resolution counts; later calls are ignored. Safe from any goroutine.
func (rc *RunContext) ResolveApproval(approved bool) {
	rc.approveOne.Do(func() {
		rc.approval <- approved
	})
}

// AwaitApproval suspends until the approval signal is resolved, the
// optional timeout elapses (resolving as rejection), or ctx is cancelled.
// It is awaited at most once per run.
func (rc *RunContext) AwaitApproval(ctx context.Context, timeout time.Duration) (bool, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case approved := <-rc.approval:
		return approved, nil
	case <-timeoutCh:
		rc.logger.Warn().Dur("timeout", timeout).Msg("Plan approval timed out; treating as rejection")
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Logger returns the run-scoped logger. The pointer keeps the zerolog
// level methods, which have pointer receivers, chainable at call sites.
func (rc *RunContext) Logger() *zerolog.Logger {
	return &rc.logger
}

type runContextKey struct{}

// WithRunContext threads the run context through a context.Context so
// tools invoked by the reasoning engine can reach it.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFrom extracts the run context, or nil when absent.
func RunContextFrom(ctx context.Context) *RunContext {
	rc, _ := ctx.Value(runContextKey{}).(*RunContext)
	return rc
}
