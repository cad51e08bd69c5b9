package engine

import (
	"context"
	"encoding/json"

	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/reason"
)

// Mode is one execution strategy for a run. Modes translate their raw
// streams through the run's shared Adapter and deliver canonical events
// via emit; emit returning false means the consumer is gone and the mode
// must stop.
type Mode interface {
	Run(ctx context.Context, rc *RunContext, emit func(event.Event) bool) error
}

// historyMessages converts prior turns into prompt messages, replaying
// tool invocations as assistant tool-call messages paired with their
// tool-result messages so the model sees what it previously did.
func historyMessages(history []Turn) []reason.Message {
	messages := make([]reason.Message, 0, len(history))
	for _, turn := range history {
		if turn.Role == "assistant" && len(turn.ToolCalls) > 0 {
			calls := make([]reason.ToolCall, 0, len(turn.ToolCalls))
			results := make([]reason.Message, 0, len(turn.ToolCalls))
			for _, record := range turn.ToolCalls {
				args := map[string]interface{}{}
				if record.Input != "" {
					// Best effort; malformed recorded input degrades to no args.
					_ = json.Unmarshal([]byte(record.Input), &args)
				}
				calls = append(calls, reason.ToolCall{ID: record.CallID, Name: record.Tool, Args: args})
				results = append(results, reason.Message{
					Role:       "tool",
					Content:    record.Output,
					ToolCallID: record.CallID,
				})
			}
			messages = append(messages, reason.Message{
				Role:      "assistant",
				Content:   turn.Content,
				ToolCalls: calls,
			})
			messages = append(messages, results...)
			continue
		}
		messages = append(messages, reason.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}
