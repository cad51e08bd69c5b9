package plan

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// StepStatus represents the lifecycle state of a plan step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ValidStatus reports whether s is one of the recognized step statuses.
func ValidStatus(s string) bool {
	switch StepStatus(s) {
	case StepStatusPending, StepStatusRunning, StepStatusCompleted, StepStatusFailed:
		return true
	}
	return false
}

// Step is a single unit of work within a plan. IDs are sequential and
// unique within a generation; a revision starts a new generation whose
// IDs continue from the revision point.
type Step struct {
	ID     int        `json:"id"`
	Title  string     `json:"title"`
	Status StepStatus `json:"status"`
}

// Plan is an ordered list of titled steps decomposing a complex request.
type Plan struct {
	ID    string `json:"plan_id"`
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// New validates the inputs and builds a plan with sequential step IDs
// starting at 1, all steps pending.
func New(title string, stepTitles []string) (*Plan, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("plan title cannot be empty")
	}
	if len(stepTitles) == 0 {
		return nil, fmt.Errorf("plan must have at least one step")
	}

	id, err := gonanoid.New(8)
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan id: %w", err)
	}

	steps := make([]Step, 0, len(stepTitles))
	for i, t := range stepTitles {
		steps = append(steps, Step{
			ID:     i + 1,
			Title:  strings.TrimSpace(t),
			Status: StepStatusPending,
		})
	}

	return &Plan{ID: id, Title: title, Steps: steps}, nil
}

// NormalizeStepTitles flattens step entries that may arrive either as plain
// strings or as small records ({"step": ...}, {"title": ...},
// {"description": ...}) into plain titles.
func NormalizeStepTitles(raw []interface{}) []string {
	titles := make([]string, 0, len(raw))
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			titles = append(titles, strings.TrimSpace(v))
		case map[string]interface{}:
			titles = append(titles, strings.TrimSpace(stepTitleFromRecord(v)))
		default:
			titles = append(titles, strings.TrimSpace(fmt.Sprintf("%v", entry)))
		}
	}
	return titles
}

func stepTitleFromRecord(record map[string]interface{}) string {
	for _, key := range []string{"step", "title", "description"} {
		if v, ok := record[key]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	// Fall back to any value the record carries.
	for _, v := range record {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// Revise replaces steps[from:] with freshly titled pending steps carrying
// new sequential IDs continuing from the revision point. steps[:from] are
// preserved untouched.
func Revise(steps []Step, from int, titles []string) []Step {
	if from < 0 {
		from = 0
	}
	if from > len(steps) {
		from = len(steps)
	}

	revised := make([]Step, 0, from+len(titles))
	revised = append(revised, steps[:from]...)
	for i, t := range titles {
		revised = append(revised, Step{
			ID:     from + i + 1,
			Title:  strings.TrimSpace(t),
			Status: StepStatusPending,
		})
	}
	return revised
}
