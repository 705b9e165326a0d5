// Package tracker unifies the in-process live job table and the durable job
// store behind one API. Callers never touch either store directly; the
// tracker keeps them in sync and emits a notification event on every state
// transition.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devkyu/platewatch/internal/common"
	"github.com/devkyu/platewatch/internal/job"
	"github.com/devkyu/platewatch/internal/notify"
)

// JobStore is the durable side of the tracker. Records survive process
// restarts and are the source of truth once the live table is gone.
type JobStore interface {
	CreateJob(ctx context.Context, j *job.Job) error
	FindJobByID(ctx context.Context, id string) (*job.Job, error)
	UpdateJobProgress(ctx context.Context, id string, p job.Progress) error
	CompleteJob(ctx context.Context, id string, result map[string]any) error
	FailJob(ctx context.Context, id string, errMsg string) error
	CancelJob(ctx context.Context, id string) error
	FindActiveJobsBySubject(ctx context.Context, subjectID int64) ([]job.Job, error)
}

// liveJob is the transient in-process view of a running job. It holds the
// cancellation token and fast-path status/progress. Entries are never
// removed for the lifetime of the process; a finished job stays queryable
// locally until restart.
type liveJob struct {
	typ       job.Type
	subjectID int64
	status    job.Status
	progress  job.Progress
	ctx       context.Context
	cancel    context.CancelFunc
}

type Tracker struct {
	mu    sync.Mutex
	live  map[string]*liveJob
	store JobStore
	sink  notify.Sink
}

func New(store JobStore, sink notify.Sink) *Tracker {
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Tracker{
		live:  make(map[string]*liveJob),
		store: store,
		sink:  sink,
	}
}

// Start registers a new job in both stores and emits a started event. If the
// durable write fails the whole operation fails; no live-only orphan is left
// behind. The returned id is immediately usable with Progress/Complete/etc.
func (t *Tracker) Start(ctx context.Context, typ job.Type, subjectID int64, metadata map[string]any, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	j := &job.Job{
		ID:        id,
		Type:      typ,
		SubjectID: subjectID,
		Status:    job.StatusActive,
		Progress:  job.NewProgress(0, 0),
		Metadata:  metadata,
		CreatedAt: now,
		StartedAt: &now,
	}

	if err := t.store.CreateJob(ctx, j); err != nil {
		return "", err
	}

	// The token lives on the background context: a job outlives the HTTP
	// request that started it.
	jobCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.live[id] = &liveJob{
		typ:       typ,
		subjectID: subjectID,
		status:    job.StatusActive,
		progress:  j.Progress,
		ctx:       jobCtx,
		cancel:    cancel,
	}
	t.mu.Unlock()

	slog.Info("job started", "job_id", id, "type", typ, "subject_id", subjectID)
	t.emit(ctx, job.EventStarted, j.ID, typ, subjectID, job.StatusActive, j.Progress, metadata, nil, "")
	return id, nil
}

// Progress records new progress in both stores and emits a progress event.
// An unknown job id is a logged no-op: progress callbacks may race a job's
// disappearance and that is not a hard error. A current value lower than the
// last accepted one is ignored.
func (t *Tracker) Progress(ctx context.Context, jobID string, current, total int, metadata map[string]any) {
	t.mu.Lock()
	entry, ok := t.live[jobID]
	if !ok {
		t.mu.Unlock()
		t.progressFallback(ctx, jobID, current, total, metadata)
		return
	}

	if entry.status.Terminal() {
		t.mu.Unlock()
		slog.Debug("progress ignored on finished job", "job_id", jobID)
		return
	}
	if current < entry.progress.Current {
		t.mu.Unlock()
		slog.Warn("non-monotonic progress ignored",
			"job_id", jobID, "current", current, "last", entry.progress.Current)
		return
	}

	p := job.NewProgress(current, total)
	entry.progress = p
	typ, subjectID := entry.typ, entry.subjectID
	t.mu.Unlock()

	if err := t.store.UpdateJobProgress(ctx, jobID, p); err != nil {
		slog.Error("failed to persist job progress", "job_id", jobID, "error", err)
	}

	t.emit(ctx, job.EventProgress, jobID, typ, subjectID, job.StatusActive, p, metadata, nil, "")
}

// progressFallback recovers type/subject from the durable record for jobs
// with no live entry (started before a restart).
func (t *Tracker) progressFallback(ctx context.Context, jobID string, current, total int, metadata map[string]any) {
	j, err := t.store.FindJobByID(ctx, jobID)
	if err != nil {
		slog.Warn("progress for unknown job ignored", "job_id", jobID, "error", err)
		return
	}
	if j.Status.Terminal() {
		slog.Debug("progress ignored on finished job", "job_id", jobID)
		return
	}

	p := job.NewProgress(current, total)
	if err := t.store.UpdateJobProgress(ctx, jobID, p); err != nil {
		slog.Error("failed to persist job progress", "job_id", jobID, "error", err)
	}
	t.emit(ctx, job.EventProgress, jobID, j.Type, j.SubjectID, job.StatusActive, p, metadata, nil, "")
}

// Complete moves a job to its completed state and emits a completed event.
// Calling it on an already-terminal job does not touch either store but does
// re-emit the event; downstream consumers are expected to tolerate that.
func (t *Tracker) Complete(ctx context.Context, jobID string, result map[string]any) {
	t.finish(ctx, jobID, job.StatusCompleted, job.EventCompleted, nil, result, "")
}

// Fail moves a job to its failed state, recording the error verbatim.
func (t *Tracker) Fail(ctx context.Context, jobID string, errMsg string, metadata map[string]any) {
	t.finish(ctx, jobID, job.StatusFailed, job.EventFailed, metadata, nil, errMsg)
}

// Cancel fires the job's cancellation token and moves it to cancelled in
// both stores. Cancellation is cooperative: running work only stops at its
// next checkpoint.
func (t *Tracker) Cancel(ctx context.Context, jobID string, metadata map[string]any) {
	t.mu.Lock()
	if entry, ok := t.live[jobID]; ok {
		entry.cancel()
	}
	t.mu.Unlock()

	t.finish(ctx, jobID, job.StatusCancelled, job.EventCancelled, metadata, nil, "")
}

func (t *Tracker) finish(ctx context.Context, jobID string, status job.Status, event string, metadata, result map[string]any, errMsg string) {
	t.mu.Lock()
	entry, ok := t.live[jobID]
	var typ job.Type
	var subjectID int64
	var progress job.Progress
	alreadyTerminal := false
	if ok {
		typ, subjectID, progress = entry.typ, entry.subjectID, entry.progress
		alreadyTerminal = entry.status.Terminal()
		if !alreadyTerminal {
			entry.status = status
		}
	}
	t.mu.Unlock()

	if !ok {
		j, err := t.store.FindJobByID(ctx, jobID)
		if err != nil {
			slog.Warn("state transition for unknown job ignored",
				"job_id", jobID, "status", status, "error", err)
			return
		}
		typ, subjectID, progress = j.Type, j.SubjectID, j.Progress
		alreadyTerminal = j.Status.Terminal()
	}

	if alreadyTerminal {
		// Known relaxed guarantee: repeated terminal calls re-emit without
		// mutating state.
		slog.Debug("repeated terminal transition re-emitted", "job_id", jobID, "status", status)
		t.emit(ctx, event, jobID, typ, subjectID, status, progress, metadata, result, errMsg)
		return
	}

	var err error
	switch status {
	case job.StatusCompleted:
		err = t.store.CompleteJob(ctx, jobID, result)
	case job.StatusFailed:
		err = t.store.FailJob(ctx, jobID, errMsg)
	case job.StatusCancelled:
		err = t.store.CancelJob(ctx, jobID)
	}
	if err != nil {
		slog.Error("failed to persist job transition", "job_id", jobID, "status", status, "error", err)
	}

	slog.Info("job finished", "job_id", jobID, "status", status)
	t.emit(ctx, event, jobID, typ, subjectID, status, progress, metadata, result, errMsg)
}

// IsCancelled is a pure local read of the live table's cancellation token.
// A job unknown to this process reports false: a job whose process died
// cannot be cancelled, only abandoned.
func (t *Tracker) IsCancelled(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.live[jobID]
	if !ok {
		return false
	}
	return entry.ctx.Err() != nil
}

// Context returns the job's cancellation token for stage invocations. Jobs
// unknown to this process get the background context.
func (t *Tracker) Context(jobID string) context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.live[jobID]; ok {
		return entry.ctx
	}
	return context.Background()
}

// Get reads a job, live table first, durable store as fallback. The
// Interrupted flag is set when the durable record says active but no live
// entry exists, which can only happen after an unclean restart.
func (t *Tracker) Get(ctx context.Context, jobID string) (*job.Job, error) {
	t.mu.Lock()
	entry, hasLive := t.live[jobID]
	var liveStatus job.Status
	var liveProgress job.Progress
	if hasLive {
		liveStatus, liveProgress = entry.status, entry.progress
	}
	t.mu.Unlock()

	j, err := t.store.FindJobByID(ctx, jobID)
	if err != nil {
		if !common.IsNotFound(err) {
			return nil, err
		}
		if !hasLive {
			return nil, common.ErrJobNotFound
		}
		// Live-only view: the durable record vanished but the process still
		// remembers the job.
		return &job.Job{
			ID:        jobID,
			Type:      entry.typ,
			SubjectID: entry.subjectID,
			Status:    liveStatus,
			Progress:  liveProgress,
		}, nil
	}

	if hasLive {
		j.Status = liveStatus
		j.Progress = liveProgress
	} else if j.Status == job.StatusActive {
		j.Interrupted = true
	}
	return j, nil
}

// FindActiveBySubject lists durably active jobs for one subject, flagging
// the ones this process has no live entry for.
func (t *Tracker) FindActiveBySubject(ctx context.Context, subjectID int64) ([]job.Job, error) {
	jobs, err := t.store.FindActiveJobsBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	for i := range jobs {
		if _, ok := t.live[jobs[i].ID]; !ok {
			jobs[i].Interrupted = true
		}
	}
	t.mu.Unlock()

	return jobs, nil
}

func (t *Tracker) emit(ctx context.Context, event, jobID string, typ job.Type, subjectID int64, status job.Status, progress job.Progress, metadata, result map[string]any, errMsg string) {
	t.sink.Emit(ctx, job.Channel(subjectID), event, job.Event{
		JobID:     jobID,
		Type:      typ,
		SubjectID: subjectID,
		Status:    status,
		Progress:  progress,
		Metadata:  metadata,
		Result:    result,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}
