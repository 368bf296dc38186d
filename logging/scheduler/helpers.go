package scheduler

import (
	"context"

	"neocore/logging"
)

const (
	// EventCatchupClamped is emitted when the fixed-step accumulator hits its ceiling.
	EventCatchupClamped logging.EventType = "scheduler.catchup_clamped"
	// EventFrameBudgetOverrun is emitted when a step takes longer than its budget.
	EventFrameBudgetOverrun logging.EventType = "scheduler.frame_budget_overrun"
	// EventTaskPanicked is emitted when a timer task panics.
	EventTaskPanicked logging.EventType = "scheduler.task_panicked"
)

// CatchupClampedPayload captures how much time was discarded.
type CatchupClampedPayload struct {
	ElapsedMillis   float64 `json:"elapsedMillis"`
	DroppedMillis   float64 `json:"droppedMillis"`
	MaxCatchupSteps int     `json:"maxCatchupSteps"`
}

// FrameBudgetOverrunPayload captures timing for a slow step.
type FrameBudgetOverrunPayload struct {
	DurationMillis float64 `json:"durationMillis"`
	BudgetMillis   float64 `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
}

// TaskPanickedPayload identifies the failing task.
type TaskPanickedPayload struct {
	TaskID uint64 `json:"taskId"`
	Panic  string `json:"panic"`
}

// CatchupClamped publishes a spiral-of-death guard activation.
func CatchupClamped(ctx context.Context, pub logging.Publisher, frame uint64, payload CatchupClampedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCatchupClamped,
		Frame:    frame,
		Source:   logging.Engine(),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryScheduler,
		Payload:  payload,
	})
}

// FrameBudgetOverrun publishes a slow step warning.
func FrameBudgetOverrun(ctx context.Context, pub logging.Publisher, frame uint64, payload FrameBudgetOverrunPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameBudgetOverrun,
		Frame:    frame,
		Source:   logging.Engine(),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryScheduler,
		Payload:  payload,
	})
}

// TaskPanicked publishes a recovered timer task panic.
func TaskPanicked(ctx context.Context, pub logging.Publisher, frame uint64, payload TaskPanickedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTaskPanicked,
		Frame:    frame,
		Source:   logging.Engine(),
		Severity: logging.SeverityError,
		Category: logging.CategoryScheduler,
		Message:  payload.Panic,
		Payload:  payload,
	})
}
