package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/internal/observability"
	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/reason"
	"github.com/devlikebear/maestro/pkg/tool"
)

// PlanDeclinedMessage is the visible reply when the user rejects a plan.
const PlanDeclinedMessage = "\n\nPlan execution was declined by the user."

// Cache is the run-result cache contract the Runner consumes. All methods
// fail open: a broken cache never fails a run.
type Cache interface {
	// Key derives the cache key for a run's inputs.
	Key(system string, history []Turn, message, model string, temperature float64) string
	// Get returns the recorded event sequence for key, or false on miss.
	Get(ctx context.Context, key string) ([]event.Event, bool)
	// Put records the event sequence for key.
	Put(ctx context.Context, key string, events []event.Event)
}

// RunnerConfig wires the Runner's collaborators and policies.
type RunnerConfig struct {
	Engine       reason.Engine
	Tools        *tool.Registry
	SystemPrompt string

	RecursionLimit      int
	PlanMaxSteps        int
	PlanRequireApproval bool
	PlanRevisionEnabled bool
	ApprovalTimeout     time.Duration

	Cache       Cache
	Model       string
	Temperature float64

	Logger zerolog.Logger
}

// Runner is the per-request orchestrator: cache short-circuit, direct
// execution, plan handover with its approval gate, and the middleware
// pipeline around the outgoing stream.
type Runner struct {
	cfg    RunnerConfig
	logger zerolog.Logger
}

// NewRunner validates the configuration and creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("reasoning engine is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	return &Runner{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "runner").Logger(),
	}, nil
}

// Run executes one request and returns its canonical event stream. The
// channel closes when the run is fully flushed. Middleware OnRunStart
// fires before the first event; OnRunEnd fires on every exit path.
func (r *Runner) Run(ctx context.Context, rc *RunContext, middlewares []Middleware) <-chan event.Event {
	out := make(chan event.Event, 64)

	go func() {
		defer close(out)
		started := time.Now()

		for _, mw := range middlewares {
			mw.OnRunStart(rc)
		}
		defer func() {
			for i := len(middlewares) - 1; i >= 0; i-- {
				middlewares[i].OnRunEnd(rc)
			}
		}()

		var cacheKey string
		if r.cfg.Cache != nil {
			cacheKey = r.cfg.Cache.Key(r.cfg.SystemPrompt, rc.History, rc.Message, r.cfg.Model, r.cfg.Temperature)
			if cached, ok := r.cfg.Cache.Get(ctx, cacheKey); ok {
				observability.IncCacheHit()
				r.logger.Info().Str("session_id", rc.SessionID).Msg("Serving run from cache")
				r.replay(ctx, cached, out)
				observability.ObserveRun("cached", time.Since(started))
				return
			}
			observability.IncCacheMiss()
		}

		var recorded []event.Event
		emit := func(ev event.Event) bool {
			processed := applyMiddleware(rc, middlewares, ev)
			if processed == nil {
				return true
			}
			if cacheKey != "" {
				recorded = append(recorded, *processed)
			}
			select {
			case out <- *processed:
				return true
			case <-ctx.Done():
				return false
			}
		}

		mode := r.execute(ctx, rc, emit)
		observability.ObserveRun(mode, time.Since(started))

		if cacheKey != "" && ctx.Err() == nil && len(recorded) > 0 {
			r.cfg.Cache.Put(ctx, cacheKey, recorded)
		}
	}()

	return out
}

// execute runs direct mode, then hands over to plan execution when a plan
// was captured. It reports which mode finished the run.
func (r *Runner) execute(ctx context.Context, rc *RunContext, emit func(event.Event) bool) string {
	adapter := NewAdapter(r.logger)

	direct := NewDirectMode(DirectModeConfig{
		Engine:         r.cfg.Engine,
		Tools:          r.cfg.Tools,
		Adapter:        adapter,
		SystemPrompt:   r.cfg.SystemPrompt,
		RecursionLimit: r.cfg.RecursionLimit,
		Temperature:    r.cfg.Temperature,
		Logger:         r.logger,
	})

	terminalErr := false
	trackingEmit := func(ev event.Event) bool {
		if ev.Type == event.TypeError {
			terminalErr = true
		}
		return emit(ev)
	}

	if err := direct.Run(ctx, rc, trackingEmit); err != nil {
		r.logger.Warn().Err(err).Str("session_id", rc.SessionID).Msg("Direct execution interrupted")
		return "direct"
	}

	p := rc.Plan()
	if p == nil {
		if !terminalErr {
			emit(event.Done())
		}
		return "direct"
	}

	if r.cfg.PlanRequireApproval {
		rc.EmitPlanEvent(event.PlanApprovalRequest(p))
		approved, err := rc.AwaitApproval(ctx, r.cfg.ApprovalTimeout)
		if err == nil {
			observability.RecordApproval(approved)
		}
		if err != nil {
			r.logger.Warn().Err(err).Str("plan_id", p.ID).Msg("Run cancelled while awaiting approval")
			return "plan"
		}
		if !approved {
			r.logger.Info().Str("plan_id", p.ID).Msg("Plan rejected by user")
			if emit(event.Token(PlanDeclinedMessage)) {
				emit(event.Done())
			}
			return "plan"
		}
	}

	planMode := NewPlanMode(PlanModeConfig{
		Engine:       r.cfg.Engine,
		Tools:        r.cfg.Tools,
		Adapter:      adapter,
		Replanner:    NewReplanner(r.cfg.Engine, r.cfg.PlanRevisionEnabled, r.logger),
		SystemPrompt: r.cfg.SystemPrompt,
		MaxSteps:     r.cfg.PlanMaxSteps,
		Temperature:  r.cfg.Temperature,
		Logger:       r.logger,
	})

	if err := planMode.Run(ctx, rc, emit); err != nil {
		r.logger.Warn().Err(err).Str("plan_id", p.ID).Msg("Plan execution interrupted")
		return "plan"
	}

	emit(event.Done())
	return "plan"
}

// replay streams a cached event sequence verbatim, bypassing middleware.
func (r *Runner) replay(ctx context.Context, events []event.Event, out chan<- event.Event) {
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
