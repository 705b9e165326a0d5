package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devkyu/platewatch/internal/common"
	"github.com/devkyu/platewatch/internal/job"
)

// collectHandler records handled items and blocks or fails on demand.
type collectHandler struct {
	mu      sync.Mutex
	handled []Item
	done    chan string

	fail   map[string]error // by item type
	gate   chan struct{}    // if set, handler waits on it before returning
	panics bool
}

func newCollectHandler() *collectHandler {
	return &collectHandler{done: make(chan string, 16)}
}

func (h *collectHandler) handle(_ context.Context, item Item) (string, error) {
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	h.handled = append(h.handled, item)
	h.mu.Unlock()
	defer func() { h.done <- item.ID }()
	if h.panics {
		panic("stage blew up")
	}
	if err, ok := h.fail[string(item.Type)]; ok {
		return "", err
	}
	return "job-" + item.ID, nil
}

func waitFinished(t *testing.T, q *Queue, id string) Item {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		item, err := q.GetItem(id)
		if err != nil {
			t.Fatalf("GetItem error: %v", err)
		}
		if item.Status.terminal() {
			return *item
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for item %s, status %s", id, item.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEnqueue_RejectsUnknownType(t *testing.T) {
	q := New()
	if _, err := q.Enqueue("mystery", 1, nil); !errors.Is(err, common.ErrUnknownType) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestEnqueue_RejectsDuplicateSubjectAndType(t *testing.T) {
	q := New()

	first, err := q.Enqueue(job.TypeRestaurantCrawl, 1, nil)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	if _, err := q.Enqueue(job.TypeRestaurantCrawl, 1, nil); !common.IsDuplicateJob(err) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	// Same type for another subject and another type for the same subject
	// are both admitted.
	if _, err := q.Enqueue(job.TypeRestaurantCrawl, 2, nil); err != nil {
		t.Fatalf("different subject must be admitted: %v", err)
	}
	if _, err := q.Enqueue(job.TypeReviewCrawl, 1, nil); err != nil {
		t.Fatalf("different type must be admitted: %v", err)
	}

	if first.Position != 0 {
		t.Fatalf("first item position = %d, want 0", first.Position)
	}
}

func TestWorker_ProcessesInEnqueueOrder(t *testing.T) {
	q := New()
	h := newCollectHandler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := q.Enqueue(job.TypeRestaurantCrawl, 1, nil)
	b, _ := q.Enqueue(job.TypeRestaurantCrawl, 2, nil)
	c, _ := q.Enqueue(job.TypeReviewCrawl, 1, nil)

	q.Start(ctx, h.handle)

	for i := 0; i < 3; i++ {
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for worker")
		}
	}

	itemC := waitFinished(t, q, c.ID)
	if itemC.Status != ItemCompleted {
		t.Fatalf("expected completed, got %s", itemC.Status)
	}
	if itemC.JobID != "job-"+c.ID {
		t.Fatalf("expected item linked to its job, got %q", itemC.JobID)
	}

	h.mu.Lock()
	order := []string{h.handled[0].ID, h.handled[1].ID, h.handled[2].ID}
	h.mu.Unlock()
	want := []string{a.ID, b.ID, c.ID}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("FIFO violated: got %v want %v", order, want)
		}
	}
}

func TestWorker_FailureIsIsolated(t *testing.T) {
	q := New()
	h := newCollectHandler()
	h.fail = map[string]error{string(job.TypeRestaurantCrawl): errors.New("crawl exploded")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, h.handle)

	bad, _ := q.Enqueue(job.TypeRestaurantCrawl, 1, nil)
	good, _ := q.Enqueue(job.TypeReviewCrawl, 1, nil)

	badItem := waitFinished(t, q, bad.ID)
	goodItem := waitFinished(t, q, good.ID)

	if badItem.Status != ItemFailed || badItem.Error == "" {
		t.Fatalf("expected failed item with error, got %+v", badItem)
	}
	if goodItem.Status != ItemCompleted {
		t.Fatalf("failure must not poison later items, got %s", goodItem.Status)
	}

	// The dedup slot is released on failure.
	if _, err := q.Enqueue(job.TypeRestaurantCrawl, 1, nil); err != nil {
		t.Fatalf("slot must be free after failure: %v", err)
	}
}

func TestWorker_SurvivesHandlerPanic(t *testing.T) {
	q := New()
	h := newCollectHandler()
	h.panics = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, h.handle)

	item, _ := q.Enqueue(job.TypeReviewSummary, 1, nil)
	got := waitFinished(t, q, item.ID)
	if got.Status != ItemFailed {
		t.Fatalf("expected failed after panic, got %s", got.Status)
	}

	h.panics = false
	next, _ := q.Enqueue(job.TypeReviewSummary, 2, nil)
	if waitFinished(t, q, next.ID).Status != ItemCompleted {
		t.Fatalf("worker must keep running after a panic")
	}
}

func TestWorker_CancelledJobMarksItemCancelled(t *testing.T) {
	q := New()
	h := newCollectHandler()
	h.fail = map[string]error{string(job.TypeReviewCrawl): common.ErrJobCancelled}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, h.handle)

	item, _ := q.Enqueue(job.TypeReviewCrawl, 3, nil)
	got := waitFinished(t, q, item.ID)
	if got.Status != ItemCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if got.Error != "" {
		t.Fatalf("cancellation is not a failure, got error %q", got.Error)
	}
}

func TestCancelItem_WaitingOnly(t *testing.T) {
	q := New()
	h := newCollectHandler()
	h.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, h.handle)

	running, _ := q.Enqueue(job.TypeRestaurantCrawl, 1, nil)
	waiting, _ := q.Enqueue(job.TypeRestaurantCrawl, 2, nil)

	// Wait until the first item is picked up and blocked in the handler.
	deadline := time.After(2 * time.Second)
	for {
		item, _ := q.GetItem(running.ID)
		if item.Status == ItemProcessing {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first item never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := q.CancelItem(waiting.ID); err != nil {
		t.Fatalf("cancelling a waiting item must succeed: %v", err)
	}
	if err := q.CancelItem(running.ID); !errors.Is(err, common.ErrItemInFlight) {
		t.Fatalf("expected in-flight refusal, got %v", err)
	}
	if err := q.CancelItem("missing"); !common.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	// A cancelled waiting item releases its dedup slot immediately.
	if _, err := q.Enqueue(job.TypeRestaurantCrawl, 2, nil); err != nil {
		t.Fatalf("slot must be free after waiting-cancel: %v", err)
	}

	close(h.gate)
	if got := waitFinished(t, q, waiting.ID); got.Status != ItemCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestStats_CountsByStatus(t *testing.T) {
	q := New()
	h := newCollectHandler()
	h.fail = map[string]error{string(job.TypeReviewSummary): errors.New("no reviews")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, h.handle)

	ok, _ := q.Enqueue(job.TypeRestaurantCrawl, 1, nil)
	bad, _ := q.Enqueue(job.TypeReviewSummary, 1, nil)
	waitFinished(t, q, ok.ID)
	waitFinished(t, q, bad.ID)

	s := q.Stats()
	if s.Completed != 1 || s.Failed != 1 || s.Waiting != 0 || s.Processing != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestWait_ReturnsAfterShutdown(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx, newCollectHandler().handle)

	cancel()
	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait did not return after context cancel")
	}
}
