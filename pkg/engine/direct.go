package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/reason"
	"github.com/devlikebear/maestro/pkg/tool"
)

// DirectMode runs the request as a single tool-loop invocation with the
// full tool set. If the model declares a plan mid-run, the mode halts
// immediately after the declaring tool call completes so the Runner can
// hand over to plan execution; the in-flight invocation is abandoned.
type DirectMode struct {
	engine         reason.Engine
	tools          *tool.Registry
	adapter        *Adapter
	systemPrompt   string
	recursionLimit int
	temperature    float64
	logger         zerolog.Logger
}

// DirectModeConfig configures Direct mode.
type DirectModeConfig struct {
	Engine         reason.Engine
	Tools          *tool.Registry
	Adapter        *Adapter
	SystemPrompt   string
	RecursionLimit int
	Temperature    float64
	Logger         zerolog.Logger
}

// NewDirectMode creates the direct execution mode.
func NewDirectMode(cfg DirectModeConfig) *DirectMode {
	return &DirectMode{
		engine:         cfg.Engine,
		tools:          cfg.Tools,
		adapter:        cfg.Adapter,
		systemPrompt:   cfg.SystemPrompt,
		recursionLimit: cfg.RecursionLimit,
		temperature:    cfg.Temperature,
		logger:         cfg.Logger.With().Str("mode", "direct").Logger(),
	}
}

// Run implements Mode.
func (m *DirectMode) Run(ctx context.Context, rc *RunContext, emit func(event.Event) bool) error {
	messages := append(historyMessages(rc.History), reason.Message{Role: "user", Content: rc.Message})

	streamCtx, cancel := context.WithCancel(WithRunContext(ctx, rc))
	defer cancel()

	raw := m.engine.Stream(streamCtx, reason.Request{
		System:         m.systemPrompt,
		Messages:       messages,
		Tools:          m.tools.All(),
		RecursionLimit: m.recursionLimit,
		Origin:         "agent",
		Temperature:    m.temperature,
	})

	halted := false
	m.adapter.Pipe(streamCtx, raw, PipeOptions{Origin: "agent", Motivation: "Answering the user's request"}, func(ev event.Event) bool {
		if !emit(ev) {
			return false
		}
		// A completed plan declaration hands the run over to plan mode;
		// everything after it in this invocation is moot.
		if ev.Type == event.TypeToolEnd && ev.Tool == PlanCreateToolName && rc.Plan() != nil {
			halted = true
			cancel()
			return false
		}
		return true
	})

	if halted {
		m.logger.Info().Str("plan_id", rc.Plan().ID).Msg("Plan captured; halting direct execution")
		return nil
	}

	m.adapter.Flush(emit)
	return ctx.Err()
}
