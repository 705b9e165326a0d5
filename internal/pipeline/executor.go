// Package pipeline runs a job's ordered stage list, cooperating with
// checkpoint-based cancellation and stopping the chain on first failure.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devkyu/platewatch/internal/common"
)

// StageFunc is an opaque stage callable. It receives the job's cancellation
// token, returns a sub-result on success, and calls back into the tracker's
// Progress/IsCancelled at its own granularity.
type StageFunc func(ctx context.Context) (any, error)

// Stage is one named step of a chain. Participation is declarative per
// invocation: disabled stages are skipped entirely.
type Stage struct {
	Name    string
	Enabled bool
	Run     StageFunc
}

// Tracker is the slice of the job coordinator the executor drives.
type Tracker interface {
	IsCancelled(jobID string) bool
	Context(jobID string) context.Context
	Complete(ctx context.Context, jobID string, result map[string]any)
	Fail(ctx context.Context, jobID string, errMsg string, metadata map[string]any)
	Cancel(ctx context.Context, jobID string, metadata map[string]any)
}

type Executor struct {
	tracker Tracker
}

func NewExecutor(tracker Tracker) *Executor {
	return &Executor{tracker: tracker}
}

// Run drives an already-started job through its stages in order. On a stage
// error the job fails with that stage's message and no later stage runs;
// completed stages' side effects stay as they are, the failure model is
// "stop forward progress", not "undo". After each stage the cancellation
// token is consulted; a cancelled job stops with the last completed stage
// recorded. On full success the job completes with a map of stage name to
// sub-result.
//
// The returned error reports the chain's outcome to the queue worker:
// nil, common.ErrJobCancelled, or the failing stage's error.
func (e *Executor) Run(ctx context.Context, jobID string, stages []Stage) error {
	jobCtx := e.tracker.Context(jobID)
	results := make(map[string]any, len(stages))
	lastCompleted := ""

	for _, stage := range stages {
		if !stage.Enabled {
			slog.Debug("stage skipped", "job_id", jobID, "stage", stage.Name)
			continue
		}

		slog.Info("stage starting", "job_id", jobID, "stage", stage.Name)
		res, err := stage.Run(jobCtx)
		if err != nil {
			slog.Error("stage failed", "job_id", jobID, "stage", stage.Name, "error", err)
			e.tracker.Fail(ctx, jobID, err.Error(), map[string]any{"stage": stage.Name})
			return fmt.Errorf("stage %s: %w", stage.Name, err)
		}

		results[stage.Name] = res
		lastCompleted = stage.Name

		if e.tracker.IsCancelled(jobID) {
			slog.Info("chain stopped by cancellation",
				"job_id", jobID, "last_completed_stage", lastCompleted)
			e.tracker.Cancel(ctx, jobID, map[string]any{"last_completed_stage": lastCompleted})
			return common.ErrJobCancelled
		}
	}

	e.tracker.Complete(ctx, jobID, results)
	return nil
}
