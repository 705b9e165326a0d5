package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/devkyu/platewatch/internal/common"
	"github.com/devkyu/platewatch/internal/database"
	"github.com/devkyu/platewatch/internal/job"
)

type Repository struct {
	db *database.DB
}

func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for health checks.
func (r *Repository) DB() *database.DB {
	return r.db
}

const jobColumns = `id, type, subject_id, status, progress, metadata, result, error, created_at, started_at, completed_at`

func (r *Repository) CreateJob(ctx context.Context, j *job.Job) error {
	query := `
		INSERT INTO jobs (id, type, subject_id, status, progress, metadata, created_at, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`

	_, err := r.db.Pool().Exec(ctx, query,
		j.ID,
		j.Type,
		j.SubjectID,
		j.Status,
		j.Progress,
		j.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}
	return nil
}

func (r *Repository) FindJobByID(ctx context.Context, id string) (*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1
	`

	j, err := scanJob(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrJobNotFound
		}
		return nil, err
	}
	return j, nil
}

func (r *Repository) UpdateJobProgress(ctx context.Context, id string, p job.Progress) error {
	query := `
		UPDATE jobs
		SET progress = $1
		WHERE id = $2 AND status = $3
	`

	_, err := r.db.Pool().Exec(ctx, query, p, id, job.StatusActive)
	return err
}

func (r *Repository) CompleteJob(ctx context.Context, id string, result map[string]any) error {
	return r.finishJob(ctx, id, job.StatusCompleted, result, "")
}

func (r *Repository) FailJob(ctx context.Context, id string, errMsg string) error {
	return r.finishJob(ctx, id, job.StatusFailed, nil, errMsg)
}

func (r *Repository) CancelJob(ctx context.Context, id string) error {
	return r.finishJob(ctx, id, job.StatusCancelled, nil, "")
}

// finishJob moves a job into a terminal state. The status guard keeps an
// already-terminal record unchanged.
func (r *Repository) finishJob(ctx context.Context, id string, status job.Status, result map[string]any, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1, result = $2, error = NULLIF($3, ''), completed_at = NOW()
		WHERE id = $4 AND status NOT IN ($5, $6, $7)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		status,
		result,
		errMsg,
		id,
		job.StatusCompleted,
		job.StatusFailed,
		job.StatusCancelled,
	)
	return err
}

func (r *Repository) FindActiveJobsBySubject(ctx context.Context, subjectID int64) ([]job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE subject_id = $1 AND status = $2
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, subjectID, job.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}

	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var j job.Job
	var errMsg *string

	err := row.Scan(
		&j.ID,
		&j.Type,
		&j.SubjectID,
		&j.Status,
		&j.Progress,
		&j.Metadata,
		&j.Result,
		&errMsg,
		&j.CreatedAt,
		&j.StartedAt,
		&j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if errMsg != nil {
		j.Error = *errMsg
	}
	return &j, nil
}
