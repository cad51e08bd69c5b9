package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/devlikebear/maestro/pkg/reason"
)

// fakeEngine scripts the reasoning capability: each Stream call plays the
// next scripted raw event sequence, each Decide call returns the next
// scripted decision.
type fakeEngine struct {
	mu sync.Mutex

	scripts   [][]reason.RawEvent
	decisions []json.RawMessage
	decideErr error

	streamCalls []reason.Request
	decideCalls int
}

func (f *fakeEngine) Stream(ctx context.Context, req reason.Request) <-chan reason.RawEvent {
	f.mu.Lock()
	f.streamCalls = append(f.streamCalls, req)
	var script []reason.RawEvent
	if len(f.scripts) > 0 {
		script = f.scripts[0]
		f.scripts = f.scripts[1:]
	}
	f.mu.Unlock()

	out := make(chan reason.RawEvent)
	go func() {
		defer close(out)
		for _, ev := range script {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeEngine) Decide(ctx context.Context, prompt, schema string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decideCalls++
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	if len(f.decisions) == 0 {
		return nil, fmt.Errorf("no scripted decision")
	}
	decision := f.decisions[0]
	f.decisions = f.decisions[1:]
	return decision, nil
}

// invocation builds a complete scripted llm invocation around the given
// middle events.
func invocation(runID string, middle ...reason.RawEvent) []reason.RawEvent {
	script := []reason.RawEvent{{Kind: reason.KindLLMStart, RunID: runID, Model: "fake"}}
	script = append(script, middle...)
	script = append(script, reason.RawEvent{Kind: reason.KindLLMEnd, RunID: runID})
	return script
}

func delta(runID, text string) reason.RawEvent {
	return reason.RawEvent{Kind: reason.KindTextDelta, RunID: runID, Text: text}
}
