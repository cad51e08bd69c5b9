package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/pkg/engine"
	"github.com/devlikebear/maestro/pkg/event"
)

// inboundFrame is one client message.
type inboundFrame struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Message   string        `json:"message,omitempty"`
	History   []engine.Turn `json:"history,omitempty"`
	Debug     bool          `json:"debug,omitempty"`
	Approved  bool          `json:"approved,omitempty"`
}

// connection serves one websocket client. One run is active at a time;
// approval frames resolve the active run's gate.
type connection struct {
	conn        *websocket.Conn
	starter     RunStarter
	middlewares []engine.Middleware
	logger      zerolog.Logger

	writeMu sync.Mutex

	runMu     sync.Mutex
	activeRun *engine.RunContext
	runDone   sync.WaitGroup
}

func newConnection(conn *websocket.Conn, starter RunStarter, middlewares []engine.Middleware, logger zerolog.Logger) *connection {
	return &connection{
		conn:        conn,
		starter:     starter,
		middlewares: middlewares,
		logger:      logger,
	}
}

// serve reads frames until the client disconnects, then waits for the
// active run to drain.
func (c *connection) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.conn.Close()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Websocket read failed")
			}
			break
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.writeEvent(event.Error("malformed frame"))
			continue
		}

		switch frame.Type {
		case "run":
			c.startRun(ctx, frame)
		case "approval":
			c.resolveApproval(frame.Approved)
		default:
			c.writeEvent(event.Error("unknown frame type: " + frame.Type))
		}
	}

	cancel()
	c.runDone.Wait()
}

// startRun launches a run for the frame and streams its events back,
// merging the plan side channel into the same writer.
func (c *connection) startRun(ctx context.Context, frame inboundFrame) {
	c.runMu.Lock()
	if c.activeRun != nil {
		c.runMu.Unlock()
		c.writeEvent(event.Error("a run is already active on this connection"))
		return
	}

	sessionID := frame.SessionID
	if sessionID == "" {
		id, err := gonanoid.New(12)
		if err != nil {
			c.runMu.Unlock()
			c.writeEvent(event.Error("failed to allocate session id"))
			return
		}
		sessionID = id
	}

	rc := engine.NewRunContext(sessionID, c.logger)
	rc.Debug = frame.Debug
	rc.Message = frame.Message
	rc.History = frame.History
	c.activeRun = rc
	c.runMu.Unlock()

	events := c.starter.Run(ctx, rc, c.middlewares)

	c.runDone.Add(1)
	go func() {
		defer c.runDone.Done()
		defer func() {
			c.runMu.Lock()
			c.activeRun = nil
			c.runMu.Unlock()
		}()
		c.pump(ctx, events, rc.PlanEvents())
	}()
}

// pump forwards run events and plan side-channel events to the client
// until the run stream closes. Side-channel events still queued when the
// run ends are drained before returning.
func (c *connection) pump(ctx context.Context, events <-chan event.Event, planEvents <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.drainPlanEvents(planEvents)
				return
			}
			if !c.writeEvent(ev) {
				return
			}
		case ev := <-planEvents:
			if !c.writeEvent(ev) {
				return
			}
		}
	}
}

func (c *connection) drainPlanEvents(planEvents <-chan event.Event) {
	for {
		select {
		case ev := <-planEvents:
			if !c.writeEvent(ev) {
				return
			}
		default:
			return
		}
	}
}

func (c *connection) resolveApproval(approved bool) {
	c.runMu.Lock()
	rc := c.activeRun
	c.runMu.Unlock()

	if rc == nil {
		c.writeEvent(event.Error("no run awaiting approval"))
		return
	}
	rc.ResolveApproval(approved)
}

// writeEvent serializes one event as a JSON frame. Writes are serialized;
// the websocket does not allow concurrent writers.
func (c *connection) writeEvent(ev event.Event) bool {
	payload, err := ev.Marshal()
	if err != nil {
		c.logger.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("Event marshal failed")
		return true
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn().Err(err).Msg("Websocket write failed")
		return false
	}
	return true
}
