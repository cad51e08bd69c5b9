package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/plan"
	"github.com/devlikebear/maestro/pkg/reason"
	"github.com/devlikebear/maestro/pkg/tool"
)

const (
	// Per-step recursion ceiling for executor sessions.
	executorRecursionLimit = 30
	// Step result text retained for the past-step log.
	maxStepResultLen = 1000
	// Per-entry ceiling when rendering past results into executor prompts.
	maxPromptResultLen = 300
	// Past-step log length; older entries fall off.
	maxPastEntries = 10
)

// PlanMode executes a captured plan step by step. Each step gets its own
// executor session with the plan-declaration tool withheld, a fresh prompt
// carrying the plan state and a bounded log of past results, and a status
// transition published before and after. A failed step is reported and the
// run continues; between steps the Replanner may revise the remaining
// steps or finish early.
type PlanMode struct {
	engine       reason.Engine
	tools        *tool.Registry
	adapter      *Adapter
	replanner    *Replanner
	systemPrompt string
	maxSteps     int
	temperature  float64
	logger       zerolog.Logger
}

// PlanModeConfig configures plan execution.
type PlanModeConfig struct {
	Engine       reason.Engine
	Tools        *tool.Registry
	Adapter      *Adapter
	Replanner    *Replanner
	SystemPrompt string
	MaxSteps     int
	Temperature  float64
	Logger       zerolog.Logger
}

// NewPlanMode creates the stepwise execution mode.
func NewPlanMode(cfg PlanModeConfig) *PlanMode {
	return &PlanMode{
		engine:       cfg.Engine,
		tools:        cfg.Tools,
		adapter:      cfg.Adapter,
		replanner:    cfg.Replanner,
		systemPrompt: cfg.SystemPrompt,
		maxSteps:     cfg.MaxSteps,
		temperature:  cfg.Temperature,
		logger:       cfg.Logger.With().Str("mode", "plan").Logger(),
	}
}

// Run implements Mode.
func (m *PlanMode) Run(ctx context.Context, rc *RunContext, emit func(event.Event) bool) error {
	p := rc.Plan()
	if p == nil {
		return fmt.Errorf("plan mode invoked with no active plan")
	}

	runCtx := WithRunContext(ctx, rc)
	past := []stepOutcome{}

	for stepIndex, executed := 0, 0; stepIndex < len(p.Steps); stepIndex++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.maxSteps > 0 && executed >= m.maxSteps {
			m.logger.Warn().Int("max_steps", m.maxSteps).Str("plan_id", p.ID).Msg("Step ceiling reached; stopping plan execution")
			break
		}
		executed++

		step := p.Steps[stepIndex]
		PublishPlanStatus(rc, step.ID, plan.StepStatusRunning)

		outcome := m.runStep(runCtx, p, step, stepIndex, past, emit)
		if outcome.Failed {
			PublishPlanStatus(rc, step.ID, plan.StepStatusFailed)
			if !emit(event.Token(fmt.Sprintf("\n\n> Step %d failed: %s\n", step.ID, outcome.Result))) {
				return nil
			}
		} else {
			PublishPlanStatus(rc, step.ID, plan.StepStatusCompleted)
		}

		past = append(past, outcome)
		if len(past) > maxPastEntries {
			past = past[len(past)-maxPastEntries:]
		}

		if stepIndex+1 >= len(p.Steps) {
			continue
		}

		decision := m.replanner.Evaluate(runCtx, p, past, stepIndex+1)
		if decision == nil {
			continue
		}
		switch decision.Action {
		case ReplanFinish:
			for i := stepIndex + 1; i < len(p.Steps); i++ {
				PublishPlanStatus(rc, p.Steps[i].ID, plan.StepStatusCompleted)
			}
			if decision.Response != "" {
				if !emit(event.Token("\n\n" + decision.Response)) {
					return nil
				}
			}
			m.adapter.Flush(emit)
			return nil
		case ReplanRevise:
			p.Steps = plan.Revise(p.Steps, stepIndex+1, decision.RevisedSteps)
			rc.EmitPlanEvent(event.PlanRevised(p.ID, p.Steps[stepIndex+1:], stepIndex+1, decision.Reason))
			m.logger.Info().Str("plan_id", p.ID).Int("keep", stepIndex+1).Int("new_steps", len(decision.RevisedSteps)).Msg("Plan revised mid-run")
		}
	}

	m.adapter.Flush(emit)
	return ctx.Err()
}

// runStep drives one executor session and condenses its outcome.
func (m *PlanMode) runStep(ctx context.Context, p *plan.Plan, step plan.Step, stepIndex int, past []stepOutcome, emit func(event.Event) bool) stepOutcome {
	raw := m.engine.Stream(ctx, reason.Request{
		System:         m.systemPrompt,
		Messages:       []reason.Message{{Role: "user", Content: m.buildStepPrompt(p, step, stepIndex, past)}},
		Tools:          m.tools.Without(PlanCreateToolName),
		RecursionLimit: executorRecursionLimit,
		Origin:         "executor",
		Temperature:    m.temperature,
	})

	var response strings.Builder
	var stepErr string

	m.adapter.Pipe(ctx, raw, PipeOptions{
		Origin:     "executor",
		Motivation: fmt.Sprintf("Executing step %d: %s", step.ID, step.Title),
	}, func(ev event.Event) bool {
		switch ev.Type {
		case event.TypeToken:
			if response.Len() < maxStepResultLen {
				response.WriteString(ev.Content)
			}
			return emit(ev)
		case event.TypeError:
			stepErr = ev.Content
			emit(ev)
			return false
		default:
			return emit(ev)
		}
	})

	if stepErr != "" {
		return stepOutcome{Title: step.Title, Result: stepErr, Failed: true}
	}
	return stepOutcome{Title: step.Title, Result: truncate(response.String(), maxStepResultLen)}
}

func (m *PlanMode) buildStepPrompt(p *plan.Plan, step plan.Step, stepIndex int, past []stepOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are executing one step of a larger plan.\n\nGoal: %s\n\nFull plan:\n", p.Title)
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s\n", s.ID, s.Status, s.Title)
	}

	if len(past) > 0 {
		b.WriteString("\nResults of previous steps:\n")
		for _, outcome := range past {
			marker := ""
			if outcome.Failed {
				marker = "[ERROR] "
			}
			fmt.Fprintf(&b, "- %s: %s%s\n", outcome.Title, marker, truncate(outcome.Result, maxPromptResultLen))
		}
	}

	fmt.Fprintf(&b, "\nCurrent step (%d/%d): %s\n", stepIndex+1, len(p.Steps), step.Title)
	b.WriteString("Carry out this step now. Stay within its scope; later steps will be executed separately.")
	return b.String()
}
