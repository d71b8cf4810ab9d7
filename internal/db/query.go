package db

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Joseda-hg/taskdeck/internal/model"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownColumn    = errors.New("unknown column")
	ErrInvalidValue     = errors.New("invalid value")
	ErrTitleRequired    = errors.New("title is required")
	ErrNothingToUpdate  = errors.New("no fields to update")
	ErrFilterRequired   = errors.New("at least one filter is required")
	ErrCategoryNotFound = errors.New("category does not exist")
)

type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindBool
	kindPriority
	kindDate
	kindImageFilter
)

var (
	taskColumns = map[string]columnKind{
		"id":          kindInt,
		"title":       kindText,
		"priority":    kindPriority,
		"category_id": kindInt,
		"due_date":    kindDate,
		"completed":   kindBool,
		"created_at":  kindText,
		"updated_at":  kindText,
	}
	categoryColumns = map[string]columnKind{
		"id":           kindInt,
		"name":         kindText,
		"color":        kindText,
		"image_filter": kindImageFilter,
		"created_at":   kindText,
	}
	historyColumns = map[string]columnKind{
		"id":         kindInt,
		"task_id":    kindInt,
		"event_type": kindText,
		"created_at": kindText,
	}
)

// Table is a collection that can be filtered and ordered by column name.
type Table string

const (
	TableTasks      Table = "tasks"
	TableCategories Table = "categories"
	TableHistory    Table = "task_history"
)

func (t Table) columns() map[string]columnKind {
	switch t {
	case TableTasks:
		return taskColumns
	case TableCategories:
		return categoryColumns
	case TableHistory:
		return historyColumns
	}
	return nil
}

// Predicate is an equality comparison on a whitelisted column.
type Predicate struct {
	Column string
	Value  any
}

// Query selects rows from a table. A zero Limit means no limit.
type Query struct {
	Predicates []Predicate
	OrderBy    string
	Desc       bool
	Limit      int
	Offset     int
}

// ParsePredicate converts a raw request value into a typed predicate for
// column of table.
func ParsePredicate(table Table, column, raw string) (Predicate, error) {
	kind, ok := table.columns()[column]
	if !ok {
		return Predicate{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
	}

	invalid := func(err error) error {
		if err != nil {
			return fmt.Errorf("%w for %s: %q: %v", ErrInvalidValue, column, raw, err)
		}
		return fmt.Errorf("%w for %s: %q", ErrInvalidValue, column, raw)
	}

	switch kind {
	case kindInt:
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Predicate{}, invalid(err)
		}
		return Predicate{Column: column, Value: value}, nil
	case kindBool:
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return Predicate{}, invalid(err)
		}
		return Predicate{Column: column, Value: value}, nil
	case kindPriority:
		if !model.Priority(raw).Valid() {
			return Predicate{}, invalid(nil)
		}
	case kindDate:
		if _, err := model.ParseDate(raw); err != nil {
			return Predicate{}, invalid(err)
		}
	case kindImageFilter:
		if !validImageFilter(model.ImageFilter(raw)) {
			return Predicate{}, invalid(nil)
		}
	}
	return Predicate{Column: column, Value: raw}, nil
}

// ValidOrderColumn reports whether column can be used in ORDER BY for table.
func ValidOrderColumn(table Table, column string) bool {
	_, ok := table.columns()[column]
	return ok
}

func (q Query) build(table Table, selectSQL string) (string, []any, error) {
	columns := table.columns()

	var sb strings.Builder
	sb.WriteString(selectSQL)

	args := make([]any, 0, len(q.Predicates))
	for i, pred := range q.Predicates {
		if _, ok := columns[pred.Column]; !ok {
			return "", nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, pred.Column)
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(pred.Column)
		sb.WriteString(" = ?")
		args = append(args, pred.Value)
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "id"
	}
	if _, ok := columns[orderBy]; !ok {
		return "", nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, orderBy)
	}
	direction := "ASC"
	if q.Desc {
		direction = "DESC"
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s", orderBy, direction)
	if orderBy != "id" {
		fmt.Fprintf(&sb, ", id %s", direction)
	}

	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", limit, max(q.Offset, 0))
	}

	return sb.String(), args, nil
}

func validImageFilter(filter model.ImageFilter) bool {
	switch filter {
	case model.ImageFilterDefault, model.ImageFilterGrayscale, model.ImageFilterSepia, model.ImageFilterBlur:
		return true
	}
	return false
}
