package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/syncbox/internal/model"
)

// UpsertTasks merges a batch of tasks in one transaction. Tasks
// carrying a remote id merge on (account_id, remote_id); local-only
// tasks merge on their id.
func (s *Store) UpsertTasks(ctx context.Context, tasks []model.ReminderTask) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, task := range tasks {
		if task.RemoteID != nil && *task.RemoteID != "" {
			var existingID string
			err := tx.GetContext(ctx, &existingID,
				"SELECT id FROM reminder_tasks WHERE account_id = ? AND remote_id = ?",
				task.AccountID.String(), *task.RemoteID,
			)
			if err == nil {
				if parsed, parseErr := uuid.Parse(existingID); parseErr == nil {
					task.ID = parsed
				}
			}
		}
		if task.ID == uuid.Nil {
			task.ID = uuid.New()
		}
		if task.Priority == "" {
			task.Priority = model.PriorityMedium
		}
		if task.Status == "" {
			task.Status = model.TaskNotStarted
		}

		var parentID *string
		if task.ParentID != nil {
			str := task.ParentID.String()
			parentID = &str
		}

		task.UpdatedAt = task.UpdatedAt.UTC()
		if task.UpdatedAt.IsZero() {
			task.UpdatedAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reminder_tasks (
				id, account_id, list_id, remote_id, title, notes,
				due_at, completed_at, priority, status,
				repeat_rule, parent_id, snoozed_until,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				list_id = excluded.list_id,
				remote_id = excluded.remote_id,
				title = excluded.title,
				notes = excluded.notes,
				due_at = excluded.due_at,
				completed_at = excluded.completed_at,
				priority = excluded.priority,
				status = excluded.status,
				repeat_rule = excluded.repeat_rule,
				parent_id = excluded.parent_id,
				snoozed_until = excluded.snoozed_until,
				updated_at = excluded.updated_at`,
			task.ID.String(), task.AccountID.String(), task.ListID,
			task.RemoteID, task.Title, task.Notes,
			nullableTime(task.DueAt), nullableTime(task.CompletedAt),
			string(task.Priority), string(task.Status),
			task.RepeatRule, parentID, nullableTime(task.SnoozedUntil),
			task.CreatedAt.UTC(), task.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting task %s: %w", task.ID, err)
		}
	}

	return tx.Commit()
}

// ListTasks returns an account's tasks, due soonest first with undated
// tasks last.
func (s *Store) ListTasks(ctx context.Context, accountID uuid.UUID) ([]model.ReminderTask, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT * FROM reminder_tasks
		WHERE account_id = ?
		ORDER BY due_at IS NULL, due_at ASC, title ASC`,
		accountID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.ReminderTask
	for rows.Next() {
		task, err := scanReminderTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CountTasks counts stored tasks for an account.
func (s *Store) CountTasks(ctx context.Context, accountID uuid.UUID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM reminder_tasks WHERE account_id = ?",
		accountID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return count, nil
}

// scanReminderTask scans a reminder_tasks row from a sqlx.Rows result set.
func scanReminderTask(rows *sqlx.Rows) (model.ReminderTask, error) {
	var (
		task      model.ReminderTask
		id        string
		accountID string
		priority  string
		status    string
		parentID  *string
	)

	err := rows.Scan(
		&id, &accountID, &task.ListID, &task.RemoteID, &task.Title, &task.Notes,
		&task.DueAt, &task.CompletedAt, &priority, &status,
		&task.RepeatRule, &parentID, &task.SnoozedUntil,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return model.ReminderTask{}, fmt.Errorf("scanning task row: %w", err)
	}

	task.ID, err = uuid.Parse(id)
	if err != nil {
		return model.ReminderTask{}, fmt.Errorf("parsing task id %q: %w", id, err)
	}
	task.AccountID, err = uuid.Parse(accountID)
	if err != nil {
		return model.ReminderTask{}, fmt.Errorf("parsing task account id %q: %w", accountID, err)
	}
	task.Priority = model.TaskPriority(priority)
	task.Status = model.TaskStatus(status)

	if parentID != nil {
		if parsed, parseErr := uuid.Parse(*parentID); parseErr == nil {
			task.ParentID = &parsed
		}
	}

	return task, nil
}
