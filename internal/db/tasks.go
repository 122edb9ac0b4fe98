package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mathtoons/mathtoons/internal/models"
)

// ErrTaskNotFound is returned when no archive row exists for a task ID.
var ErrTaskNotFound = errors.New("task not found")

func (db *DB) CreateTask(ctx context.Context, rec *models.TaskRecord) error {
	query := `
		INSERT INTO generation_tasks (
			task_id, student_name, topic, lang, status
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		rec.TaskID, rec.StudentName, rec.Topic, rec.Lang, rec.Status,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (db *DB) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, url, errorText *string) error {
	query := `
		UPDATE generation_tasks
		SET status = $2, url = $3, error_text = $4, updated_at = NOW()
		WHERE task_id = $1
	`

	result, err := db.ExecContext(ctx, query, taskID, status, url, errorText)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return ErrTaskNotFound
	}

	return nil
}

func (db *DB) GetTask(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	query := `
		SELECT task_id, student_name, topic, lang, status, url, error_text, created_at, updated_at
		FROM generation_tasks
		WHERE task_id = $1
	`

	rec := &models.TaskRecord{}
	err := db.QueryRowContext(ctx, query, taskID).Scan(
		&rec.TaskID, &rec.StudentName, &rec.Topic, &rec.Lang, &rec.Status,
		&rec.URL, &rec.ErrorText, &rec.CreatedAt, &rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return rec, nil
}

// ListCompletedTasks returns recently completed generations, newest first.
// Backs the history endpoint the frontend uses to show past videos.
func (db *DB) ListCompletedTasks(ctx context.Context, limit int) ([]models.TaskRecord, error) {
	query := `
		SELECT task_id, student_name, topic, lang, status, url, error_text, created_at, updated_at
		FROM generation_tasks
		WHERE status = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := db.QueryContext(ctx, query, models.TaskStatusComplete, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var records []models.TaskRecord
	for rows.Next() {
		var rec models.TaskRecord
		if err := rows.Scan(
			&rec.TaskID, &rec.StudentName, &rec.Topic, &rec.Lang, &rec.Status,
			&rec.URL, &rec.ErrorText, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (db *DB) CountTasks(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generation_tasks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}
