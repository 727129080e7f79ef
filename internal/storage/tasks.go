package storage

import (
	"context"

	"github.com/evoronina/konspekt/internal/tasks"
	ec "github.com/evoronina/konspekt/pkgs/errors"
	"github.com/google/uuid"
)

type Tasks struct {
	Storage
}

func (s Storage) Task() Tasks {
	return Tasks{s}
}

// Insert stores a new task in the Queued state. When fn is non-nil it runs
// inside the same transaction, so the forward queue message is only
// published if the row commits.
func (t Tasks) Insert(ctx context.Context, task tasks.Task,
	fn func(ctx context.Context, taskID uuid.UUID) error) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return handlePgxErr(err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, `
		INSERT INTO tasks (task_id, created_at, lecture_title, video_url, status)
		VALUES ($1, $2, $3, $4, $5)`,
		task.TaskID, task.CreatedAt, task.LectureTitle, task.VideoURL,
		tasks.StatusQueued.String(),
	); err != nil {
		return handlePgxErr(err)
	}

	if fn != nil {
		if err = fn(ctx, task.TaskID); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return handlePgxErr(err)
	}
	return nil
}

// UpdateStatus moves a task along its lifecycle. Transitions are validated
// against the current row under a row lock: terminal states absorb (an
// identical terminal rewrite is a no-op, anything else is rejected), and
// regressions are rejected. Idempotent under message redelivery.
func (t Tasks) UpdateStatus(ctx context.Context, taskID uuid.UUID,
	status tasks.Status, description *string) error {
	if !status.Valid() {
		return ec.ErrValidationFailed.Clone().
			WithDetails("unknown task status: " + status.String())
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return handlePgxErr(err)
	}
	defer tx.Rollback(ctx)

	var current string
	if err = tx.QueryRow(ctx, `
		SELECT status FROM tasks WHERE task_id = $1 FOR UPDATE`,
		taskID,
	).Scan(&current); err != nil {
		return handlePgxErr(err)
	}

	currentStatus, err := tasks.ParseStatus(current)
	if err != nil {
		return ec.ErrDBError.Clone().
			WithDetails("stored status is outside the closed set").
			Warp(err)
	}

	if currentStatus == status {
		// Redelivered update; the row already says what the caller wants
		// it to say.
		return tx.Commit(ctx)
	}

	if !currentStatus.CanTransition(status) {
		if currentStatus.Terminal() {
			return ec.ErrTerminalState.Clone().
				WithDetails(currentStatus.String() + " -> " + status.String())
		}
		return ec.ErrValidationFailed.Clone().
			WithDetails("illegal status transition: " +
				currentStatus.String() + " -> " + status.String())
	}

	if _, err = tx.Exec(ctx, `
		UPDATE tasks SET status = $2, description = $3 WHERE task_id = $1`,
		taskID, status.String(), description,
	); err != nil {
		return handlePgxErr(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return handlePgxErr(err)
	}
	return nil
}

// Get retrieves a single task by id.
func (t Tasks) Get(ctx context.Context, taskID uuid.UUID) (tasks.Task, error) {
	var (
		task   tasks.Task
		status string
	)
	if err := t.db.QueryRow(ctx, `
		SELECT task_id, created_at, lecture_title, video_url, status, description
		FROM tasks WHERE task_id = $1`,
		taskID,
	).Scan(&task.TaskID, &task.CreatedAt, &task.LectureTitle, &task.VideoURL,
		&status, &task.Description); err != nil {
		return tasks.Task{}, handlePgxErr(err)
	}

	parsed, err := tasks.ParseStatus(status)
	if err != nil {
		return tasks.Task{}, ec.ErrDBError.Clone().
			WithDetails("stored status is outside the closed set").
			Warp(err)
	}
	task.Status = parsed
	return task, nil
}

// List returns the most recent tasks, newest first.
func (t Tasks) List(ctx context.Context, limit int32) ([]tasks.Task, error) {
	rows, err := t.db.Query(ctx, `
		SELECT task_id, created_at, lecture_title, video_url, status, description
		FROM tasks ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, handlePgxErr(err)
	}
	defer rows.Close()

	result := make([]tasks.Task, 0, limit)
	for rows.Next() {
		var (
			task   tasks.Task
			status string
		)
		if err := rows.Scan(&task.TaskID, &task.CreatedAt, &task.LectureTitle,
			&task.VideoURL, &status, &task.Description); err != nil {
			return nil, handlePgxErr(err)
		}
		parsed, err := tasks.ParseStatus(status)
		if err != nil {
			return nil, ec.ErrDBError.Clone().
				WithDetails("stored status is outside the closed set").
				Warp(err)
		}
		task.Status = parsed
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePgxErr(err)
	}
	return result, nil
}
