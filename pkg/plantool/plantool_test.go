package plantool

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlikebear/maestro/pkg/engine"
	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/plan"
)

func runContext(t *testing.T) (*engine.RunContext, context.Context) {
	t.Helper()
	rc := engine.NewRunContext("s1", zerolog.Nop())
	return rc, engine.WithRunContext(context.Background(), rc)
}

func TestCreateHandler(t *testing.T) {
	t.Run("should capture a plan and publish plan_created", func(t *testing.T) {
		rc, ctx := runContext(t)

		out, err := CreateDefinition().Handler(ctx, map[string]interface{}{
			"title": "Ship it",
			"steps": []interface{}{"Build", "Test", "Deploy"},
		})
		require.NoError(t, err)
		assert.Contains(t, out, "Plan created")
		assert.Contains(t, out, "3 steps")

		p := rc.Plan()
		require.NotNil(t, p)
		assert.Equal(t, "Ship it", p.Title)
		assert.Len(t, p.Steps, 3)

		ev := <-rc.PlanEvents()
		assert.Equal(t, event.TypePlanCreated, ev.Type)
		assert.Same(t, p, ev.Plan)
	})

	t.Run("should normalize record-shaped steps", func(t *testing.T) {
		rc, ctx := runContext(t)

		_, err := CreateDefinition().Handler(ctx, map[string]interface{}{
			"title": "Goal",
			"steps": []interface{}{
				map[string]interface{}{"step": "First"},
				"Second",
			},
		})
		require.NoError(t, err)

		p := rc.Plan()
		require.NotNil(t, p)
		assert.Equal(t, "First", p.Steps[0].Title)
		assert.Equal(t, "Second", p.Steps[1].Title)
	})

	t.Run("should reject a second plan in the same run", func(t *testing.T) {
		rc, ctx := runContext(t)
		p, err := plan.New("Existing", []string{"Step"})
		require.NoError(t, err)
		rc.SetPlan(p)

		out, err := CreateDefinition().Handler(ctx, map[string]interface{}{
			"title": "Another",
			"steps": []interface{}{"Step"},
		})
		require.NoError(t, err)
		assert.Contains(t, out, "Error")
		assert.Same(t, p, rc.Plan())
	})

	t.Run("should report validation failures as tool output", func(t *testing.T) {
		_, ctx := runContext(t)

		out, err := CreateDefinition().Handler(ctx, map[string]interface{}{
			"title": "",
			"steps": []interface{}{"Step"},
		})
		require.NoError(t, err)
		assert.Contains(t, out, "Error")
	})

	t.Run("should fail without an active run", func(t *testing.T) {
		out, err := CreateDefinition().Handler(context.Background(), map[string]interface{}{
			"title": "Goal",
			"steps": []interface{}{"Step"},
		})
		require.NoError(t, err)
		assert.Contains(t, out, "no active run")
	})
}

func TestUpdateHandler(t *testing.T) {
	planContext := func(t *testing.T) (*engine.RunContext, context.Context) {
		t.Helper()
		rc, ctx := runContext(t)
		p, err := plan.New("Goal", []string{"One", "Two"})
		require.NoError(t, err)
		rc.SetPlan(p)
		return rc, ctx
	}

	t.Run("should publish the status transition", func(t *testing.T) {
		rc, ctx := planContext(t)

		out, err := UpdateDefinition().Handler(ctx, map[string]interface{}{
			"step_id": float64(1), // JSON numbers decode as float64
			"status":  "running",
		})
		require.NoError(t, err)
		assert.Equal(t, "Step 1 -> running", out)
		assert.Equal(t, plan.StepStatusRunning, rc.Plan().Steps[0].Status)

		ev := <-rc.PlanEvents()
		assert.Equal(t, event.TypePlanUpdated, ev.Type)
	})

	t.Run("should reject a mismatched plan id", func(t *testing.T) {
		rc, ctx := planContext(t)

		out, err := UpdateDefinition().Handler(ctx, map[string]interface{}{
			"plan_id": "nope",
			"step_id": float64(1),
			"status":  "running",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "unknown plan_id")
		assert.Equal(t, plan.StepStatusPending, rc.Plan().Steps[0].Status)
	})

	t.Run("should accept the active plan id", func(t *testing.T) {
		rc, ctx := planContext(t)

		out, err := UpdateDefinition().Handler(ctx, map[string]interface{}{
			"plan_id": rc.Plan().ID,
			"step_id": float64(1),
			"status":  "running",
		})
		require.NoError(t, err)
		assert.Equal(t, "Step 1 -> running", out)
	})

	t.Run("should reject invalid statuses", func(t *testing.T) {
		_, ctx := planContext(t)

		out, err := UpdateDefinition().Handler(ctx, map[string]interface{}{
			"step_id": float64(1),
			"status":  "paused",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "invalid status")
	})

	t.Run("should reject non-numeric step ids", func(t *testing.T) {
		_, ctx := planContext(t)

		out, err := UpdateDefinition().Handler(ctx, map[string]interface{}{
			"step_id": "one",
			"status":  "running",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "step_id must be an integer")
	})

	t.Run("should fail without an active plan", func(t *testing.T) {
		_, ctx := runContext(t)

		out, err := UpdateDefinition().Handler(ctx, map[string]interface{}{
			"step_id": float64(1),
			"status":  "running",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "no active plan")
	})
}
