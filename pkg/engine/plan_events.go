package engine

import (
	"github.com/devlikebear/maestro/internal/observability"
	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/plan"
)

// Tool names the orchestration core treats specially. The plan-declaration
// tool is how Direct mode detects a captured plan; the status tool lets
// the executor report progress mid-step.
const (
	PlanCreateToolName = "plan_create"
	PlanUpdateToolName = "plan_update"
)

// PublishPlanStatus applies a step status transition to the active plan
// and publishes the matching side-channel events.
//
// Marking a step running force-completes every earlier step that is not
// already completed, emitting an update for each. Progress only moves
// forward; a skipped or silently finished step never lingers as running.
func PublishPlanStatus(rc *RunContext, stepID int, status plan.StepStatus) {
	p := rc.Plan()
	if p == nil {
		rc.Logger().Warn().Int("step_id", stepID).Msg("Plan status update with no active plan")
		return
	}

	var target *plan.Step
	for i := range p.Steps {
		if p.Steps[i].ID == stepID {
			target = &p.Steps[i]
			break
		}
	}
	if target == nil {
		rc.Logger().Warn().Int("step_id", stepID).Str("plan_id", p.ID).Msg("Plan status update for unknown step")
		return
	}

	if status == plan.StepStatusRunning {
		for i := range p.Steps {
			if p.Steps[i].ID >= stepID {
				break
			}
			if p.Steps[i].Status != plan.StepStatusCompleted {
				p.Steps[i].Status = plan.StepStatusCompleted
				rc.EmitPlanEvent(event.PlanUpdated(p.ID, p.Steps[i].ID, plan.StepStatusCompleted))
			}
		}
	}

	target.Status = status
	rc.EmitPlanEvent(event.PlanUpdated(p.ID, stepID, status))
	observability.RecordPlanStep(string(status))
}
