// Package event defines the canonical, provider-agnostic progress events
// the orchestration core emits. Every event carries a type discriminator
// plus the type-specific fields, and serializes to the JSON wire shape the
// delivery layer streams to clients.
package event

import (
	"encoding/json"

	"github.com/devlikebear/maestro/pkg/plan"
)

// Type discriminates the members of the event union.
type Type string

const (
	TypeToken               Type = "token"
	TypeToolStart           Type = "tool_start"
	TypeToolEnd             Type = "tool_end"
	TypeLLMStart            Type = "llm_start"
	TypeLLMEnd              Type = "llm_end"
	TypePlanCreated         Type = "plan_created"
	TypePlanUpdated         Type = "plan_updated"
	TypePlanRevised         Type = "plan_revised"
	TypePlanApprovalRequest Type = "plan_approval_request"
	TypeDone                Type = "done"
	TypeError               Type = "error"
)

// Event is the canonical unit of progress. Only the fields relevant to the
// Type are populated; the rest stay at their zero value and are omitted
// from the wire shape.
type Event struct {
	Type Type `json:"type"`

	// token / error
	Content string `json:"content,omitempty"`

	// tool_start / tool_end
	Tool   string `json:"tool,omitempty"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`

	// llm_start / llm_end
	RunID      string `json:"run_id,omitempty"`
	Origin     string `json:"origin,omitempty"`
	Model      string `json:"model,omitempty"`
	Motivation string `json:"motivation,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`

	// llm_end / tool_end
	DurationMS int64 `json:"duration_ms,omitempty"`

	// plan_* events
	Plan          *plan.Plan      `json:"plan,omitempty"`
	PlanID        string          `json:"plan_id,omitempty"`
	StepID        int             `json:"step_id,omitempty"`
	Status        plan.StepStatus `json:"status,omitempty"`
	RevisedSteps  []plan.Step     `json:"revised_steps,omitempty"`
	KeepCompleted int             `json:"keep_completed,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Steps         []plan.Step     `json:"steps,omitempty"`
	Title         string          `json:"title,omitempty"`
}

// Marshal renders the event in its JSON wire shape.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Token builds a visible text delta event.
func Token(text string) Event {
	return Event{Type: TypeToken, Content: text}
}

// ToolStart brackets the start of a tool invocation.
func ToolStart(tool, input string) Event {
	return Event{Type: TypeToolStart, Tool: tool, Input: input}
}

// ToolEnd brackets the completion of a tool invocation.
func ToolEnd(tool, output string, durationMS int64) Event {
	return Event{Type: TypeToolEnd, Tool: tool, Output: output, DurationMS: durationMS}
}

// LLMStart brackets the start of a reasoning invocation.
func LLMStart(runID, origin, model, input, motivation string) Event {
	return Event{
		Type:       TypeLLMStart,
		RunID:      runID,
		Origin:     origin,
		Model:      model,
		Input:      input,
		Motivation: motivation,
	}
}

// LLMEnd brackets the completion of a reasoning invocation. reasoning holds
// the deliberation text the filter extracted for this invocation, if any.
func LLMEnd(runID, origin, model, output, reasoning string, durationMS int64) Event {
	return Event{
		Type:       TypeLLMEnd,
		RunID:      runID,
		Origin:     origin,
		Model:      model,
		Output:     output,
		Reasoning:  reasoning,
		DurationMS: durationMS,
	}
}

// PlanCreated announces a freshly declared plan.
func PlanCreated(p *plan.Plan) Event {
	return Event{Type: TypePlanCreated, Plan: p}
}

// PlanUpdated announces a step status transition.
func PlanUpdated(planID string, stepID int, status plan.StepStatus) Event {
	return Event{Type: TypePlanUpdated, PlanID: planID, StepID: stepID, Status: status}
}

// PlanRevised announces a mid-run revision: the steps from keepCompleted
// onward were replaced by revisedSteps.
func PlanRevised(planID string, revisedSteps []plan.Step, keepCompleted int, reason string) Event {
	return Event{
		Type:          TypePlanRevised,
		PlanID:        planID,
		RevisedSteps:  revisedSteps,
		KeepCompleted: keepCompleted,
		Reason:        reason,
	}
}

// PlanApprovalRequest asks the user to approve or reject a captured plan.
func PlanApprovalRequest(p *plan.Plan) Event {
	return Event{
		Type:   TypePlanApprovalRequest,
		PlanID: p.ID,
		Title:  p.Title,
		Steps:  p.Steps,
	}
}

// Done marks the end of a run's event stream.
func Done() Event {
	return Event{Type: TypeDone}
}

// Error carries a terminal or step-level failure as a visible event.
func Error(text string) Event {
	return Event{Type: TypeError, Content: text}
}
