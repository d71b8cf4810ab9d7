package store

import (
	"fmt"

	"github.com/Joseda-hg/taskdeck/internal/api"
)

// Op names a store operation in an OpError.
type Op string

const (
	OpFetchCategories Op = "fetch_categories"
	OpFetchTasks      Op = "fetch_tasks"
	OpAddTask         Op = "add_task"
	OpUpdateTask      Op = "update_task"
	OpDeleteTask      Op = "delete_task"
)

// Human-readable messages attached to failed operations. The two read
// messages are also what State().Error holds after a failed fetch.
const (
	MsgCategoriesFailed = "Failed to load categories"
	MsgTasksFailed      = "Failed to load tasks"
	MsgCreateFailed     = "Failed to create task"
	MsgUpdateFailed     = "Failed to update task"
	MsgDeleteFailed     = "Failed to delete task"
)

// OpError is the failure result of every store operation.
type OpError struct {
	Op      Op
	Kind    api.Kind
	Message string
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func newOpError(op Op, message string, err error) *OpError {
	kind := api.KindOf(err)
	if kind == "" {
		kind = api.KindTransport
	}
	return &OpError{Op: op, Kind: kind, Message: message, Err: err}
}
