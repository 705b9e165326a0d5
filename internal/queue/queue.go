// Package queue admission-controls crawl work. It rejects duplicate
// submissions for the same (subject, work type) pair and drains items one at
// a time: the scraping collaborator is rate- and resource-limited, so single
// consumption is a deliberate backpressure decision, not an accident.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devkyu/platewatch/internal/common"
	"github.com/devkyu/platewatch/internal/job"
)

type ItemStatus string

const (
	ItemWaiting    ItemStatus = "waiting"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemCancelled  ItemStatus = "cancelled"
)

func (s ItemStatus) terminal() bool {
	switch s {
	case ItemCompleted, ItemFailed, ItemCancelled:
		return true
	}
	return false
}

// Item is one admission-controlled request waiting for the worker.
type Item struct {
	ID         string         `json:"id"`
	Type       job.Type       `json:"type"`
	SubjectID  int64          `json:"subject_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	Status     ItemStatus     `json:"status"`
	Position   int            `json:"position"`
	JobID      string         `json:"job_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Stats is a point-in-time snapshot recomputed from live counts.
type Stats struct {
	Waiting    int `json:"waiting"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// Handler executes one item, normally by starting a job and driving the
// pipeline executor, and returns the id of the job it started so the item
// can be linked to it. Returning common.ErrJobCancelled marks the item
// cancelled; any other error marks it failed. Neither stops the worker loop.
type Handler func(ctx context.Context, item Item) (jobID string, err error)

type Queue struct {
	mu      sync.Mutex
	items   map[string]*Item
	pending []*Item
	inUse   map[string]string // dedup key -> item id, waiting or processing

	kick chan struct{}
	wg   sync.WaitGroup
}

func New() *Queue {
	return &Queue{
		items: make(map[string]*Item),
		inUse: make(map[string]string),
		kick:  make(chan struct{}, 1),
	}
}

func dedupKey(subjectID int64, typ job.Type) string {
	return fmt.Sprintf("%d:%s", subjectID, typ)
}

// Enqueue appends a work item to the tail. A second item with the same
// (subject, type) while the first is still waiting or processing is a
// user-facing rejection; the caller must wait for the existing item.
func (q *Queue) Enqueue(typ job.Type, subjectID int64, payload map[string]any) (*Item, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownType, typ)
	}

	q.mu.Lock()
	key := dedupKey(subjectID, typ)
	if existing, ok := q.inUse[key]; ok {
		q.mu.Unlock()
		slog.Info("duplicate enqueue rejected",
			"subject_id", subjectID, "type", typ, "existing_item", existing)
		return nil, fmt.Errorf("%s for subject %d: %w", typ, subjectID, common.ErrDuplicateJob)
	}

	item := &Item{
		ID:         uuid.NewString(),
		Type:       typ,
		SubjectID:  subjectID,
		Payload:    payload,
		Status:     ItemWaiting,
		Position:   q.countAheadLocked(),
		EnqueuedAt: time.Now(),
	}
	q.items[item.ID] = item
	q.pending = append(q.pending, item)
	q.inUse[key] = item.ID
	snapshot := *item
	q.mu.Unlock()

	q.wake()
	slog.Info("work item enqueued",
		"item_id", item.ID, "type", typ, "subject_id", subjectID, "position", snapshot.Position)
	return &snapshot, nil
}

// countAheadLocked is the position of a newly enqueued item: everything
// waiting plus anything currently processing.
func (q *Queue) countAheadLocked() int {
	n := len(q.pending)
	for _, item := range q.items {
		if item.Status == ItemProcessing {
			n++
		}
	}
	return n
}

// CancelItem withdraws a waiting item. In-flight cancellation is the job
// tracker's concern, so a processing item is refused.
func (q *Queue) CancelItem(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return common.ErrQueueItemNotFound
	}

	switch item.Status {
	case ItemWaiting:
		now := time.Now()
		item.Status = ItemCancelled
		item.FinishedAt = &now
		delete(q.inUse, dedupKey(item.SubjectID, item.Type))
		for i, p := range q.pending {
			if p.ID == id {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
		slog.Info("work item cancelled while waiting", "item_id", id)
		return nil
	case ItemProcessing:
		return common.ErrItemInFlight
	default:
		return fmt.Errorf("queue item already %s: %w", item.Status, common.ErrConflict)
	}
}

// GetItem returns a snapshot of one item.
func (q *Queue) GetItem(id string) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return nil, common.ErrQueueItemNotFound
	}
	snapshot := *item
	return &snapshot, nil
}

// Stats recomputes counts from the live table on every call.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	for _, item := range q.items {
		switch item.Status {
		case ItemWaiting:
			s.Waiting++
		case ItemProcessing:
			s.Processing++
		case ItemCompleted:
			s.Completed++
		case ItemFailed:
			s.Failed++
		case ItemCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Start launches the single worker loop. Items are handled strictly in
// enqueue order; one item's failure never stops the loop.
func (q *Queue) Start(ctx context.Context, handler Handler) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				slog.Info("queue worker shutting down")
				return
			case <-q.kick:
			}

			for {
				item := q.next()
				if item == nil {
					break
				}
				q.process(ctx, item, handler)
			}
		}
	}()
	slog.Info("queue worker started")
}

// Wait blocks until the worker loop has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) wake() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

func (q *Queue) next() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	item := q.pending[0]
	q.pending = q.pending[1:]
	now := time.Now()
	item.Status = ItemProcessing
	item.StartedAt = &now
	return item
}

func (q *Queue) process(ctx context.Context, item *Item, handler Handler) {
	slog.Info("processing work item", "item_id", item.ID, "type", item.Type, "subject_id", item.SubjectID)

	q.mu.Lock()
	snapshot := *item
	q.mu.Unlock()

	jobID, err := q.run(ctx, snapshot, handler)

	q.mu.Lock()
	now := time.Now()
	item.JobID = jobID
	item.FinishedAt = &now
	switch {
	case err == nil:
		item.Status = ItemCompleted
	case common.IsJobCancelled(err):
		item.Status = ItemCancelled
	default:
		item.Status = ItemFailed
		item.Error = err.Error()
	}
	delete(q.inUse, dedupKey(item.SubjectID, item.Type))
	status := item.Status
	q.mu.Unlock()

	if err != nil && !common.IsJobCancelled(err) {
		slog.Error("work item failed", "item_id", item.ID, "error", err)
	} else {
		slog.Info("work item finished", "item_id", item.ID, "status", status)
	}
}

// run isolates handler panics so a bad stage brings down one item, not the
// worker.
func (q *Queue) run(ctx context.Context, item Item, handler Handler) (jobID string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return handler(ctx, item)
}
