package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/model"
)

const historySelect = `SELECT id, task_id, event_type, details, created_at FROM task_history`

type historyRow struct {
	ID        int64     `db:"id"`
	TaskID    int64     `db:"task_id"`
	EventType string    `db:"event_type"`
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) AddHistory(ctx context.Context, taskID int64, eventType, details string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO task_history (task_id, event_type, details, created_at) VALUES (?, ?, ?, ?)`,
		taskID, eventType, details, s.now())
	return err
}

func (s *Store) ListHistory(ctx context.Context, query Query) ([]model.HistoryEntry, error) {
	stmt, args, err := query.build(TableHistory, historySelect)
	if err != nil {
		return nil, err
	}

	var rows []historyRow
	if err := s.DB.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, err
	}

	history := make([]model.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		history = append(history, model.HistoryEntry{
			ID:        row.ID,
			TaskID:    row.TaskID,
			EventType: row.EventType,
			Details:   row.Details,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return history, nil
}

func formatCreatedDetails(task model.Task) string {
	return fmt.Sprintf("created: title='%s' priority=%s category=%d due=%s", task.Title, task.Priority, task.CategoryID, formatDue(task.DueDate))
}

func formatDeletedDetails(task model.Task) string {
	return fmt.Sprintf("deleted: title='%s' priority=%s category=%d due=%s completed=%t", task.Title, task.Priority, task.CategoryID, formatDue(task.DueDate), task.Completed)
}

func formatTaskDiff(before, after model.Task) string {
	changes := []string{}
	if before.Title != after.Title {
		changes = append(changes, formatChange("title", before.Title, after.Title))
	}
	if valueOf(before.Description) != valueOf(after.Description) {
		changes = append(changes, formatChange("description", valueOf(before.Description), valueOf(after.Description)))
	}
	if before.Priority != after.Priority {
		changes = append(changes, formatChange("priority", string(before.Priority), string(after.Priority)))
	}
	if before.CategoryID != after.CategoryID {
		changes = append(changes, formatChange("category", fmt.Sprintf("%d", before.CategoryID), fmt.Sprintf("%d", after.CategoryID)))
	}
	if formatDue(before.DueDate) != formatDue(after.DueDate) {
		changes = append(changes, formatChange("due", formatDue(before.DueDate), formatDue(after.DueDate)))
	}
	if before.Completed != after.Completed {
		changes = append(changes, formatChange("completed", fmt.Sprintf("%t", before.Completed), fmt.Sprintf("%t", after.Completed)))
	}

	if len(changes) == 0 {
		return "updated: no changes"
	}

	return "updated: " + strings.Join(changes, "; ")
}

func formatChange(field, before, after string) string {
	return fmt.Sprintf("%s: '%s' -> '%s'", field, valueOrNone(before), valueOrNone(after))
}

func valueOf(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func valueOrNone(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "none"
	}
	return trimmed
}

func formatDue(value *model.Date) string {
	if value == nil {
		return "none"
	}
	return value.String()
}
