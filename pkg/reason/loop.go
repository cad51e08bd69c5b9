package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/pkg/tool"
)

// DefaultRecursionLimit bounds the tool loop when the request does not
// set its own ceiling.
const DefaultRecursionLimit = 25

// Loop is the built-in Engine: a bounded ReAct loop over a ChatModel.
// Each turn makes one streaming chat call; requested tool calls are
// executed through the bound tool set and their results fed back until
// the model stops calling tools or the recursion ceiling is reached.
type Loop struct {
	model  ChatModel
	logger zerolog.Logger
}

// NewLoop creates an Engine backed by the given chat model.
func NewLoop(model ChatModel, logger zerolog.Logger) *Loop {
	return &Loop{
		model:  model,
		logger: logger.With().Str("component", "reason").Logger(),
	}
}

// Stream implements Engine.
func (l *Loop) Stream(ctx context.Context, req Request) <-chan RawEvent {
	out := make(chan RawEvent)
	go func() {
		defer close(out)
		l.run(ctx, req, out)
	}()
	return out
}

func (l *Loop) run(ctx context.Context, req Request, out chan<- RawEvent) {
	limit := req.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}

	messages := append([]Message(nil), req.Messages...)

	for turn := 0; turn < limit; turn++ {
		if ctx.Err() != nil {
			return
		}

		runID := uuid.NewString()
		if !send(ctx, out, RawEvent{
			Kind:   KindLLMStart,
			RunID:  runID,
			Origin: req.Origin,
			Model:  l.model.Model(),
			Input:  formatDebugInput(req.System, messages),
		}) {
			return
		}

		resp, err := l.model.StreamChat(ctx, ChatRequest{
			System:      req.System,
			Messages:    messages,
			Tools:       req.Tools,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}, func(delta string) {
			send(ctx, out, RawEvent{Kind: KindTextDelta, RunID: runID, Text: delta})
		})
		if err != nil {
			l.logger.Error().Err(err).Str("run_id", runID).Msg("Chat model call failed")
			send(ctx, out, RawEvent{Kind: KindError, RunID: runID, Error: err.Error()})
			return
		}

		if !send(ctx, out, RawEvent{
			Kind:   KindLLMEnd,
			RunID:  runID,
			Origin: req.Origin,
			Model:  l.model.Model(),
			Output: resp.Content,
		}) {
			return
		}

		if len(resp.ToolCalls) == 0 {
			return
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			output := l.invokeTool(ctx, req, call, out)
			messages = append(messages, Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}

	l.logger.Warn().Int("limit", limit).Msg("Recursion limit exceeded")
	send(ctx, out, RawEvent{Kind: KindError, Error: fmt.Sprintf("recursion limit (%d) exceeded", limit)})
}

func (l *Loop) invokeTool(ctx context.Context, req Request, call ToolCall, out chan<- RawEvent) string {
	inputJSON, _ := json.Marshal(call.Args)
	send(ctx, out, RawEvent{
		Kind:  KindToolStart,
		RunID: call.ID,
		Tool:  call.Name,
		Input: string(inputJSON),
	})

	output := l.execute(ctx, req.Tools, call)

	send(ctx, out, RawEvent{
		Kind:   KindToolEnd,
		RunID:  call.ID,
		Tool:   call.Name,
		Output: output,
	})
	return output
}

func (l *Loop) execute(ctx context.Context, tools []tool.Definition, call ToolCall) string {
	for _, def := range tools {
		if def.Name != call.Name {
			continue
		}
		output, err := def.Handler(ctx, call.Args)
		if err != nil {
			l.logger.Warn().Err(err).Str("tool", call.Name).Msg("Tool invocation failed")
			return fmt.Sprintf("Error: %v", err)
		}
		return output
	}
	l.logger.Warn().Str("tool", call.Name).Msg("Model requested unbound tool")
	return fmt.Sprintf("Error: tool not found: %s", call.Name)
}

// Decide implements Engine: one non-streaming call whose reply is parsed
// down to its JSON payload.
func (l *Loop) Decide(ctx context.Context, prompt string, schema string) (json.RawMessage, error) {
	full := prompt
	if schema != "" {
		full = fmt.Sprintf("%s\n\nRespond with a single JSON object matching this schema:\n%s", prompt, schema)
	}

	reply, err := l.model.Complete(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("structured decision call failed: %w", err)
	}

	payload := extractJSONObject(reply)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in decision reply")
	}
	return json.RawMessage(payload), nil
}

// extractJSONObject strips code fences and surrounding prose, returning
// the outermost {...} span, or "" when none exists.
func extractJSONObject(reply string) string {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return ""
	}
	return reply[start : end+1]
}

// formatDebugInput renders the invocation input for llm_start diagnostics.
func formatDebugInput(system string, messages []Message) string {
	var b strings.Builder
	b.WriteString("[System Prompt]\n")
	b.WriteString(system)
	b.WriteString("\n\n[Messages]\n")
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", msg.Role, msg.Content)
	}
	return b.String()
}

// send delivers ev unless ctx is cancelled; it reports whether delivery
// happened so producers can stop when the consumer is gone.
func send(ctx context.Context, out chan<- RawEvent, ev RawEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
