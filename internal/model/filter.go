package model

import (
	"fmt"
	"strconv"
)

type FilterType string

const (
	FilterAll      FilterType = "all"
	FilterCategory FilterType = "category"
	FilterStatus   FilterType = "status"
	FilterPriority FilterType = "priority"
)

// Filter selects at most one task dimension. Value is ignored for FilterAll.
type Filter struct {
	Type  FilterType `json:"type"`
	Value string     `json:"value,omitempty"`
}

func AllTasks() Filter {
	return Filter{Type: FilterAll}
}

func CategoryFilter(categoryID int64) Filter {
	return Filter{Type: FilterCategory, Value: strconv.FormatInt(categoryID, 10)}
}

func StatusFilter(completed bool) Filter {
	return Filter{Type: FilterStatus, Value: strconv.FormatBool(completed)}
}

func PriorityFilter(priority Priority) Filter {
	return Filter{Type: FilterPriority, Value: string(priority)}
}

// Column returns the task column the filter compares against, or "" when
// the filter selects every task.
func (f Filter) Column() string {
	switch f.Type {
	case FilterCategory:
		return "category_id"
	case FilterStatus:
		return "completed"
	case FilterPriority:
		return "priority"
	}
	return ""
}

func (f Filter) String() string {
	if f.Column() == "" {
		return string(FilterAll)
	}
	return fmt.Sprintf("%s=%s", f.Type, f.Value)
}
