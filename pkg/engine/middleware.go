package engine

import (
	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/pkg/event"
)

// Middleware observes and reshapes a run's event stream. OnEvent may
// transform the event or suppress it by returning nil. OnRunStart fires
// once before the first event; OnRunEnd fires exactly once on every exit
// path, including errors and cancellation.
type Middleware interface {
	OnRunStart(rc *RunContext)
	OnEvent(rc *RunContext, ev event.Event) *event.Event
	OnRunEnd(rc *RunContext)
}

// applyMiddleware threads ev through the chain in order. A nil return from
// any middleware suppresses the event for the rest of the chain and the
// client.
func applyMiddleware(rc *RunContext, middlewares []Middleware, ev event.Event) *event.Event {
	current := &ev
	for _, mw := range middlewares {
		current = mw.OnEvent(rc, *current)
		if current == nil {
			return nil
		}
	}
	return current
}

// LoggingMiddleware logs run lifecycle and non-token events. Tokens are
// too chatty to log individually.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates the logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger.With().Str("component", "middleware").Logger()}
}

// OnRunStart implements Middleware.
func (m *LoggingMiddleware) OnRunStart(rc *RunContext) {
	m.logger.Info().Str("session_id", rc.SessionID).Msg("Run started")
}

// OnEvent implements Middleware.
func (m *LoggingMiddleware) OnEvent(rc *RunContext, ev event.Event) *event.Event {
	if ev.Type != event.TypeToken {
		m.logger.Debug().
			Str("session_id", rc.SessionID).
			Str("event_type", string(ev.Type)).
			Msg("Run event")
	}
	return &ev
}

// OnRunEnd implements Middleware.
func (m *LoggingMiddleware) OnRunEnd(rc *RunContext) {
	m.logger.Info().Str("session_id", rc.SessionID).Msg("Run ended")
}
