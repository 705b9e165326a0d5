package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/devkyu/platewatch/internal/common"
)

// stubTracker records the executor's tracker calls without any real stores.
type stubTracker struct {
	cancelled map[string]bool

	completedWith map[string]any
	failedMsg     string
	failedMeta    map[string]any
	cancelMeta    map[string]any
}

func newStubTracker() *stubTracker {
	return &stubTracker{cancelled: make(map[string]bool)}
}

func (s *stubTracker) IsCancelled(jobID string) bool  { return s.cancelled[jobID] }
func (s *stubTracker) Context(string) context.Context { return context.Background() }
func (s *stubTracker) Complete(_ context.Context, _ string, result map[string]any) {
	s.completedWith = result
}
func (s *stubTracker) Fail(_ context.Context, _ string, errMsg string, metadata map[string]any) {
	s.failedMsg = errMsg
	s.failedMeta = metadata
}
func (s *stubTracker) Cancel(_ context.Context, _ string, metadata map[string]any) {
	s.cancelMeta = metadata
}

func stage(name string, enabled bool, ran *[]string, res any, err error) Stage {
	return Stage{
		Name:    name,
		Enabled: enabled,
		Run: func(context.Context) (any, error) {
			*ran = append(*ran, name)
			return res, err
		},
	}
}

func TestRun_CompletesWithAggregateResult(t *testing.T) {
	tr := newStubTracker()
	e := NewExecutor(tr)
	var ran []string

	err := e.Run(context.Background(), "j1", []Stage{
		stage("menu", true, &ran, map[string]any{"items": 12}, nil),
		stage("reviews", true, &ran, map[string]any{"saved": 40}, nil),
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("expected both stages to run, got %v", ran)
	}
	if tr.completedWith == nil {
		t.Fatalf("expected Complete to be called")
	}
	if _, ok := tr.completedWith["menu"]; !ok {
		t.Fatalf("aggregate result missing menu sub-result: %+v", tr.completedWith)
	}
	if _, ok := tr.completedWith["reviews"]; !ok {
		t.Fatalf("aggregate result missing reviews sub-result: %+v", tr.completedWith)
	}
}

func TestRun_SkipsDisabledStages(t *testing.T) {
	tr := newStubTracker()
	e := NewExecutor(tr)
	var ran []string

	err := e.Run(context.Background(), "j1", []Stage{
		stage("menu", true, &ran, nil, nil),
		stage("summary", false, &ran, nil, nil),
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(ran) != 1 || ran[0] != "menu" {
		t.Fatalf("disabled stage must not run, got %v", ran)
	}
	if _, ok := tr.completedWith["summary"]; ok {
		t.Fatalf("skipped stage must not appear in the aggregate result")
	}
}

func TestRun_FailFastStopsChain(t *testing.T) {
	tr := newStubTracker()
	e := NewExecutor(tr)
	var ran []string
	boom := errors.New("fetch failed: 503")

	err := e.Run(context.Background(), "j1", []Stage{
		stage("menu", true, &ran, nil, nil),
		stage("reviews", true, &ran, nil, boom),
		stage("summary", true, &ran, nil, nil),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped stage error, got %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("later stage must not run after a failure, got %v", ran)
	}
	if tr.failedMsg != boom.Error() {
		t.Fatalf("error must be recorded verbatim, got %q", tr.failedMsg)
	}
	if tr.failedMeta["stage"] != "reviews" {
		t.Fatalf("failing stage must be named, got %+v", tr.failedMeta)
	}
	if tr.completedWith != nil {
		t.Fatalf("a failed chain must not complete")
	}
}

func TestRun_StopsAtCancellationCheckpoint(t *testing.T) {
	tr := newStubTracker()
	e := NewExecutor(tr)
	var ran []string

	stages := []Stage{
		{Name: "menu", Enabled: true, Run: func(context.Context) (any, error) {
			ran = append(ran, "menu")
			// Cancellation lands while this stage is running.
			tr.cancelled["j1"] = true
			return nil, nil
		}},
		stage("reviews", true, &ran, nil, nil),
	}

	err := e.Run(context.Background(), "j1", stages)
	if !common.IsJobCancelled(err) {
		t.Fatalf("expected cancellation sentinel, got %v", err)
	}
	if len(ran) != 1 {
		t.Fatalf("no stage may start after the checkpoint, got %v", ran)
	}
	if tr.cancelMeta["last_completed_stage"] != "menu" {
		t.Fatalf("expected last completed stage recorded, got %+v", tr.cancelMeta)
	}
}

func TestRun_EmptyChainCompletes(t *testing.T) {
	tr := newStubTracker()
	e := NewExecutor(tr)

	if err := e.Run(context.Background(), "j1", nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if tr.completedWith == nil || len(tr.completedWith) != 0 {
		t.Fatalf("expected empty aggregate result, got %+v", tr.completedWith)
	}
}
