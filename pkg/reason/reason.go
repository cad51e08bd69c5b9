// Package reason exposes the reasoning capability as a narrow invokable
// contract: prompt and tools in, a raw event stream out, plus a
// structured-decision variant. The orchestration core treats everything
// behind Engine as opaque; pkg/engine translates the raw vocabulary into
// canonical events.
package reason

import (
	"context"
	"encoding/json"

	"github.com/devlikebear/maestro/pkg/tool"
)

// Kind discriminates raw event payloads.
type Kind string

const (
	KindLLMStart  Kind = "llm_start"
	KindTextDelta Kind = "text_delta"
	KindLLMEnd    Kind = "llm_end"
	KindToolStart Kind = "tool_start"
	KindToolEnd   Kind = "tool_end"
	KindError     Kind = "error"
)

// RawEvent is the provider-specific event vocabulary before translation.
// Only the fields relevant to Kind are populated. Completion events may
// carry Pending: a monotonically growing list of events produced by the
// engine's own internal steps, of which only the newly appended suffix is
// new each time.
type RawEvent struct {
	Kind   Kind
	RunID  string
	Origin string
	Model  string

	Text   string // text_delta
	Tool   string // tool_start / tool_end
	Input  string // llm_start / tool_start
	Output string // llm_end / tool_end
	Error  string // error

	Pending []RawEvent // llm_end side channel
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Message is one prompt message.
type Message struct {
	Role       string // "user", "assistant", "tool"
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// Request describes one reasoning invocation.
type Request struct {
	System         string
	Messages       []Message
	Tools          []tool.Definition
	RecursionLimit int
	Origin         string // origin label stamped on raw events
	Temperature    float64
	MaxTokens      int
}

// Engine is the reasoning capability contract.
type Engine interface {
	// Stream drives the capability to completion, yielding a lazy,
	// forward-only, single-consumption sequence of raw events. The
	// channel is closed when the invocation ends; cancellation of ctx
	// stops production at the next suspension point.
	Stream(ctx context.Context, req Request) <-chan RawEvent

	// Decide issues one structured-decision request and returns the raw
	// JSON value. schema documents the expected shape to the model;
	// validation is the caller's concern.
	Decide(ctx context.Context, prompt string, schema string) (json.RawMessage, error)
}

// ChatRequest is a single chat-model call within the loop.
type ChatRequest struct {
	System      string
	Messages    []Message
	Tools       []tool.Definition
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the accumulated result of one chat-model call.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// ChatModel is one provider-backed chat endpoint: a single streaming call
// with tool support, and a single non-streaming completion.
type ChatModel interface {
	// StreamChat makes one streaming call, invoking onDelta for every
	// visible text delta, and returns the accumulated response.
	StreamChat(ctx context.Context, req ChatRequest, onDelta func(string)) (*ChatResponse, error)

	// Complete makes one non-streaming call with a single user prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Model returns the configured model identifier.
	Model() string
}
