package engine

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/plan"
)

func drainPlanEvents(rc *RunContext) []event.Event {
	var out []event.Event
	for {
		select {
		case ev := <-rc.PlanEvents():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func newPlanContext(t *testing.T, stepTitles ...string) *RunContext {
	t.Helper()
	rc := NewRunContext("s1", zerolog.Nop())
	p, err := plan.New("Goal", stepTitles)
	require.NoError(t, err)
	rc.SetPlan(p)
	return rc
}

func TestPublishPlanStatus(t *testing.T) {
	t.Run("should update the step and emit plan_updated", func(t *testing.T) {
		rc := newPlanContext(t, "One", "Two")

		PublishPlanStatus(rc, 1, plan.StepStatusRunning)

		assert.Equal(t, plan.StepStatusRunning, rc.Plan().Steps[0].Status)
		events := drainPlanEvents(rc)
		require.Len(t, events, 1)
		assert.Equal(t, event.TypePlanUpdated, events[0].Type)
		assert.Equal(t, 1, events[0].StepID)
	})

	t.Run("should force-complete earlier steps when a later step starts", func(t *testing.T) {
		rc := newPlanContext(t, "One", "Two", "Three")

		PublishPlanStatus(rc, 3, plan.StepStatusRunning)

		steps := rc.Plan().Steps
		assert.Equal(t, plan.StepStatusCompleted, steps[0].Status)
		assert.Equal(t, plan.StepStatusCompleted, steps[1].Status)
		assert.Equal(t, plan.StepStatusRunning, steps[2].Status)

		events := drainPlanEvents(rc)
		require.Len(t, events, 3)
		assert.Equal(t, 1, events[0].StepID)
		assert.Equal(t, plan.StepStatusCompleted, events[0].Status)
		assert.Equal(t, 2, events[1].StepID)
		assert.Equal(t, 3, events[2].StepID)
		assert.Equal(t, plan.StepStatusRunning, events[2].Status)
	})

	t.Run("should force-complete even previously failed steps", func(t *testing.T) {
		rc := newPlanContext(t, "One", "Two")
		rc.Plan().Steps[0].Status = plan.StepStatusFailed

		PublishPlanStatus(rc, 2, plan.StepStatusRunning)

		assert.Equal(t, plan.StepStatusCompleted, rc.Plan().Steps[0].Status)
	})

	t.Run("should not touch earlier steps on non-running transitions", func(t *testing.T) {
		rc := newPlanContext(t, "One", "Two")

		PublishPlanStatus(rc, 2, plan.StepStatusCompleted)

		assert.Equal(t, plan.StepStatusPending, rc.Plan().Steps[0].Status)
		events := drainPlanEvents(rc)
		require.Len(t, events, 1)
	})

	t.Run("should ignore unknown step ids", func(t *testing.T) {
		rc := newPlanContext(t, "One")

		PublishPlanStatus(rc, 99, plan.StepStatusRunning)

		assert.Empty(t, drainPlanEvents(rc))
	})

	t.Run("should ignore updates with no active plan", func(t *testing.T) {
		rc := NewRunContext("s1", zerolog.Nop())
		PublishPlanStatus(rc, 1, plan.StepStatusRunning)
		assert.Empty(t, drainPlanEvents(rc))
	})
}
