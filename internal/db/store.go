package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Joseda-hg/taskdeck/internal/model"
)

const taskSelect = `SELECT id, created_at, updated_at, title, description, priority, category_id, due_date, completed, image_url FROM tasks`

type Store struct {
	DB  *sqlx.DB
	now func() time.Time
}

type taskRow struct {
	ID          int64          `db:"id"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Priority    string         `db:"priority"`
	CategoryID  int64          `db:"category_id"`
	DueDate     sql.NullString `db:"due_date"`
	Completed   bool           `db:"completed"`
	ImageURL    sql.NullString `db:"image_url"`
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) CreateTask(ctx context.Context, input model.CreateTaskPayload) (model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return model.Task{}, ErrTitleRequired
	}

	priority := input.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.Valid() {
		return model.Task{}, fmt.Errorf("%w for priority: %q", ErrInvalidValue, priority)
	}

	if err := s.ensureCategory(ctx, input.CategoryID); err != nil {
		return model.Task{}, err
	}

	var dueDate sql.NullString
	if input.DueDate != nil {
		dueDate = sql.NullString{String: input.DueDate.String(), Valid: true}
	}

	result, err := s.DB.ExecContext(ctx, `INSERT INTO tasks
    (created_at, title, description, priority, category_id, due_date, completed, image_url)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.now(), title, nullString(input.Description), string(priority), input.CategoryID, dueDate, false, nullString(input.ImageURL))
	if err != nil {
		return model.Task{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Task{}, err
	}

	created, err := s.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	if err := s.AddHistory(ctx, created.ID, "created", formatCreatedDetails(created)); err != nil {
		return model.Task{}, err
	}

	return created, nil
}

// UpdateTasks applies a partial update to every task matching preds and
// returns the updated rows.
func (s *Store) UpdateTasks(ctx context.Context, preds []Predicate, input model.UpdateTaskPayload) ([]model.Task, error) {
	if len(preds) == 0 {
		return nil, ErrFilterRequired
	}

	set, args, err := s.updateAssignments(ctx, input)
	if err != nil {
		return nil, err
	}

	matches, err := s.ListTasks(ctx, Query{Predicates: preds})
	if err != nil {
		return nil, err
	}

	updated := make([]model.Task, 0, len(matches))
	for _, before := range matches {
		stmt := "UPDATE tasks SET " + strings.Join(set, ", ") + " WHERE id = ?"
		if _, err := s.DB.ExecContext(ctx, stmt, append(args, before.ID)...); err != nil {
			return nil, err
		}

		after, err := s.GetTask(ctx, before.ID)
		if err != nil {
			return nil, err
		}

		if err := s.AddHistory(ctx, after.ID, "updated", formatTaskDiff(before, after)); err != nil {
			return nil, err
		}
		updated = append(updated, after)
	}

	return updated, nil
}

func (s *Store) updateAssignments(ctx context.Context, input model.UpdateTaskPayload) ([]string, []any, error) {
	if input.Empty() {
		return nil, nil, ErrNothingToUpdate
	}

	var set []string
	var args []any
	assign := func(column string, value any) {
		set = append(set, column+" = ?")
		args = append(args, value)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, nil, ErrTitleRequired
		}
		assign("title", title)
	}
	if input.Description != nil {
		assign("description", *input.Description)
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, nil, fmt.Errorf("%w for priority: %q", ErrInvalidValue, *input.Priority)
		}
		assign("priority", string(*input.Priority))
	}
	if input.CategoryID != nil {
		if err := s.ensureCategory(ctx, *input.CategoryID); err != nil {
			return nil, nil, err
		}
		assign("category_id", *input.CategoryID)
	}
	if input.DueDate != nil {
		assign("due_date", input.DueDate.String())
	}
	if input.Completed != nil {
		assign("completed", *input.Completed)
	}
	assign("updated_at", s.now())

	return set, args, nil
}

// DeleteTasks removes every task matching preds and returns the removed rows.
func (s *Store) DeleteTasks(ctx context.Context, preds []Predicate) ([]model.Task, error) {
	if len(preds) == 0 {
		return nil, ErrFilterRequired
	}

	matches, err := s.ListTasks(ctx, Query{Predicates: preds})
	if err != nil {
		return nil, err
	}

	for _, before := range matches {
		if err := s.AddHistory(ctx, before.ID, "deleted", formatDeletedDetails(before)); err != nil {
			return nil, err
		}
		if _, err := s.DB.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", before.ID); err != nil {
			return nil, err
		}
	}

	return matches, nil
}

func (s *Store) GetTask(ctx context.Context, taskID int64) (model.Task, error) {
	var row taskRow
	err := s.DB.GetContext(ctx, &row, taskSelect+" WHERE id = ?", taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return model.Task{}, err
	}
	return mapTask(row), nil
}

func (s *Store) ListTasks(ctx context.Context, query Query) ([]model.Task, error) {
	stmt, args, err := query.build(TableTasks, taskSelect)
	if err != nil {
		return nil, err
	}

	var rows []taskRow
	if err := s.DB.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, err
	}

	result := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		result = append(result, mapTask(row))
	}
	return result, nil
}

func (s *Store) ensureCategory(ctx context.Context, categoryID int64) error {
	var exists int
	err := s.DB.GetContext(ctx, &exists, "SELECT 1 FROM categories WHERE id = ?", categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrCategoryNotFound, categoryID)
	}
	return err
}

func mapTask(row taskRow) model.Task {
	task := model.Task{
		ID:         row.ID,
		CreatedAt:  row.CreatedAt.UTC(),
		Title:      row.Title,
		Priority:   model.Priority(row.Priority),
		CategoryID: row.CategoryID,
		Completed:  row.Completed,
	}
	if row.UpdatedAt.Valid {
		updatedAt := row.UpdatedAt.Time.UTC()
		task.UpdatedAt = &updatedAt
	}
	if row.Description.Valid {
		description := row.Description.String
		task.Description = &description
	}
	if row.DueDate.Valid {
		if due, err := model.ParseDate(row.DueDate.String); err == nil {
			task.DueDate = &due
		}
	}
	if row.ImageURL.Valid {
		imageURL := row.ImageURL.String
		task.ImageURL = &imageURL
	}
	return task
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
