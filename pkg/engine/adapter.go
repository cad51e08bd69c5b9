package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/reason"
)

const (
	// llm_start diagnostic input ceiling.
	maxDebugInputLen = 5000
	// tool_end output ceiling on the canonical stream.
	maxToolOutputLen = 2000
)

// PipeOptions tunes one adapted invocation.
type PipeOptions struct {
	// Origin overrides the raw events' origin label ("executor" in plan
	// mode step sessions).
	Origin string
	// Motivation labels why this invocation runs, surfaced on llm_start.
	Motivation string
}

type llmInvocation struct {
	start  time.Time
	origin string
	model  string
}

type toolInvocation struct {
	start time.Time
	tool  string
}

// Adapter is the single translation boundary between the reasoning
// engine's raw event vocabulary and the canonical event protocol. One
// Adapter serves an entire run: both execution modes pipe through it, so
// call bracketing, the side-channel counter, and the reasoning-text
// filter state all persist across invocation and phase boundaries.
type Adapter struct {
	logger zerolog.Logger
	filter *ReasoningFilter

	llmStarts  map[string]llmInvocation
	toolStarts map[string]toolInvocation

	// Count of side-channel events already surfaced. Grows monotonically;
	// never reset mid-run.
	surfaced int
}

// NewAdapter creates a per-run adapter with a fresh filter.
func NewAdapter(logger zerolog.Logger) *Adapter {
	return &Adapter{
		logger:     logger.With().Str("component", "adapter").Logger(),
		filter:     NewReasoningFilter(),
		llmStarts:  make(map[string]llmInvocation),
		toolStarts: make(map[string]toolInvocation),
	}
}

// Pipe translates one raw event stream into canonical events, delivering
// each through emit. It returns when the raw stream closes, ctx is
// cancelled, or emit reports the consumer is done.
func (a *Adapter) Pipe(ctx context.Context, raw <-chan reason.RawEvent, opts PipeOptions, emit func(event.Event) bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case rawEv, ok := <-raw:
			if !ok {
				return
			}
			if !a.adapt(rawEv, opts, emit) {
				return
			}
		}
	}
}

func (a *Adapter) adapt(raw reason.RawEvent, opts PipeOptions, emit func(event.Event) bool) bool {
	switch raw.Kind {
	case reason.KindTextDelta:
		// Forward only visible text; deliberation spans accumulate in the
		// filter until the matching llm_end.
		if visible := a.filter.Feed(raw.Text); visible != "" {
			return emit(event.Token(visible))
		}
		return true

	case reason.KindLLMStart:
		origin := opts.Origin
		if origin == "" {
			origin = raw.Origin
		}
		motivation := opts.Motivation
		if motivation == "" {
			motivation = "Reasoning over the request"
		}
		a.llmStarts[raw.RunID] = llmInvocation{start: time.Now(), origin: origin, model: raw.Model}
		return emit(event.LLMStart(shortRunID(raw.RunID), origin, raw.Model, truncate(raw.Input, maxDebugInputLen), motivation))

	case reason.KindLLMEnd:
		tracked, ok := a.llmStarts[raw.RunID]
		if !ok {
			a.logger.Debug().Str("run_id", raw.RunID).Msg("Dropping unmatched llm completion")
			return true
		}
		delete(a.llmStarts, raw.RunID)

		if !a.emitPendingSuffix(raw.Pending, emit) {
			return false
		}

		reasoning := a.filter.TakeDeliberation()
		durationMS := time.Since(tracked.start).Milliseconds()
		return emit(event.LLMEnd(shortRunID(raw.RunID), tracked.origin, tracked.model, raw.Output, reasoning, durationMS))

	case reason.KindToolStart:
		a.toolStarts[raw.RunID] = toolInvocation{start: time.Now(), tool: raw.Tool}
		return emit(event.ToolStart(raw.Tool, raw.Input))

	case reason.KindToolEnd:
		tracked, ok := a.toolStarts[raw.RunID]
		if !ok {
			a.logger.Debug().Str("run_id", raw.RunID).Str("tool", raw.Tool).Msg("Dropping unmatched tool completion")
			return true
		}
		delete(a.toolStarts, raw.RunID)
		durationMS := time.Since(tracked.start).Milliseconds()
		return emit(event.ToolEnd(raw.Tool, truncate(raw.Output, maxToolOutputLen), durationMS))

	case reason.KindError:
		return emit(event.Error(raw.Error))

	default:
		a.logger.Debug().Str("kind", string(raw.Kind)).Msg("Ignoring unknown raw event kind")
		return true
	}
}

// emitPendingSuffix surfaces the newly appended suffix of a completion's
// embedded side-channel event list. The counter grows monotonically so a
// replayed superset re-emits only what was not yet surfaced.
func (a *Adapter) emitPendingSuffix(pending []reason.RawEvent, emit func(event.Event) bool) bool {
	if len(pending) <= a.surfaced {
		return true
	}
	suffix := pending[a.surfaced:]
	a.surfaced = len(pending)

	for _, rawEv := range suffix {
		switch rawEv.Kind {
		case reason.KindToolStart:
			if !emit(event.ToolStart(rawEv.Tool, rawEv.Input)) {
				return false
			}
		case reason.KindToolEnd:
			if !emit(event.ToolEnd(rawEv.Tool, truncate(rawEv.Output, maxToolOutputLen), 0)) {
				return false
			}
		case reason.KindTextDelta:
			if visible := a.filter.Feed(rawEv.Text); visible != "" {
				if !emit(event.Token(visible)) {
					return false
				}
			}
		}
	}
	return true
}

// Flush drains the filter's tail as a final visible-output emission. Call
// once, when the run's last invocation has completed.
func (a *Adapter) Flush(emit func(event.Event) bool) {
	if visible := a.filter.Flush(); visible != "" {
		emit(event.Token(visible))
	}
}

func shortRunID(runID string) string {
	if len(runID) > 12 {
		return runID[:12]
	}
	return runID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
