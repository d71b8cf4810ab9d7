package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type ImageFilter string

const (
	ImageFilterDefault   ImageFilter = "default"
	ImageFilterGrayscale ImageFilter = "grayscale"
	ImageFilterSepia     ImageFilter = "sepia"
	ImageFilterBlur      ImageFilter = "blur"
)

type Task struct {
	ID          int64      `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Priority    Priority   `json:"priority"`
	CategoryID  int64      `json:"category_id"`
	DueDate     *Date      `json:"due_date"`
	Completed   bool       `json:"completed"`
	ImageURL    *string    `json:"image_url"`
}

type Category struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Color           string      `json:"color"`
	IconURL         string      `json:"icon_url"`
	ImageFilter     ImageFilter `json:"image_filter"`
	ImageSeedOffset int         `json:"image_seed_offset"`
	CreatedAt       time.Time   `json:"created_at"`
}

// CreateTaskPayload is the body of a task insert. Unset optional fields are
// left to server defaults.
type CreateTaskPayload struct {
	Title       string   `json:"title"`
	CategoryID  int64    `json:"category_id"`
	Description *string  `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	DueDate     *Date    `json:"due_date,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
}

// UpdateTaskPayload carries only the fields being changed.
type UpdateTaskPayload struct {
	Title       *string   `json:"title,omitempty"`
	CategoryID  *int64    `json:"category_id,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	DueDate     *Date     `json:"due_date,omitempty"`
	Completed   *bool     `json:"completed,omitempty"`
}

func (p UpdateTaskPayload) Empty() bool {
	return p.Title == nil && p.CategoryID == nil && p.Description == nil &&
		p.Priority == nil && p.DueDate == nil && p.Completed == nil
}

type HistoryEntry struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

const DateLayout = "2006-01-02"

// Date is a calendar date encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return Date{Time: parsed}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	// Some backends serialize date columns as full timestamps.
	if len(value) > len(DateLayout) {
		value = value[:len(DateLayout)]
	}
	parsed, err := ParseDate(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
