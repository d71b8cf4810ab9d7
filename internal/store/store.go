// Package store keeps a local, paginated view of the remote task collection
// and reconciles it with the rows the API echoes back after each mutation.
package store

import (
	"context"
	"net/url"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/logging"
	"github.com/Joseda-hg/taskdeck/internal/model"
)

const (
	DefaultItemsPerPage = 6

	tasksPath      = "/tasks"
	categoriesPath = "/categories"
)

// Transport is the subset of api.Client the store needs.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, query url.Values, body, out any) error
	Delete(ctx context.Context, path string, query url.Values, out any) error
}

type Options struct {
	ItemsPerPage int
	Logger       logrus.FieldLogger
}

// State is a snapshot of the store. Slices are copies and may be modified by
// the caller.
type State struct {
	Tasks        []model.Task
	Categories   []model.Category
	Loading      bool
	Error        string
	CurrentPage  int
	ItemsPerPage int
	HasMoreTasks bool
	Filter       model.Filter
}

// Store is the task cache. It is safe for concurrent use; the network call of
// an operation runs without holding the state lock, so overlapping fetches are
// possible and are resolved by generation: only the most recently issued
// fetch may apply its result.
type Store struct {
	transport Transport
	perPage   int
	log       *logrus.Entry

	mu         sync.Mutex
	tasks      []model.Task
	categories []model.Category
	inFlight   int
	errMsg     string
	page       int
	hasMore    bool
	filter     model.Filter
	generation uint64
}

func New(transport Transport, opts Options) *Store {
	perPage := opts.ItemsPerPage
	if perPage < 1 {
		perPage = DefaultItemsPerPage
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Store{
		transport: transport,
		perPage:   perPage,
		log:       logging.Component(logger, "store"),
		page:      1,
		filter:    model.AllTasks(),
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Tasks:        slices.Clone(s.tasks),
		Categories:   slices.Clone(s.categories),
		Loading:      s.inFlight > 0,
		Error:        s.errMsg,
		CurrentPage:  s.page,
		ItemsPerPage: s.perPage,
		HasMoreTasks: s.hasMore,
		Filter:       s.filter,
	}
}

// Task returns the cached task with the given id.
func (s *Store) Task(id int64) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(id)
	if index < 0 {
		return model.Task{}, false
	}
	return s.tasks[index], true
}

// FetchCategories replaces the cached categories with the full collection
// ordered by name. On failure the previous categories are kept and the
// shared error message is set.
func (s *Store) FetchCategories(ctx context.Context) error {
	query := url.Values{"order": {api.Order("name", false)}}

	var categories []model.Category
	if err := s.transport.Get(ctx, categoriesPath, query, &categories); err != nil {
		opErr := newOpError(OpFetchCategories, MsgCategoriesFailed, err)
		s.log.WithError(err).WithField("kind", opErr.Kind).Error("fetch categories")

		s.mu.Lock()
		s.errMsg = opErr.Message
		s.mu.Unlock()
		return opErr
	}

	s.mu.Lock()
	s.categories = nonNil(categories)
	s.mu.Unlock()
	return nil
}

// FetchTasks loads the current page for the current filter and replaces the
// cached tasks with it. Loading reports true until every fetch in flight has
// settled. A fetch superseded by a later one is discarded on arrival and
// reports no error.
func (s *Store) FetchTasks(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.inFlight++
	s.errMsg = ""
	query := s.taskQueryLocked()
	page, filter := s.page, s.filter
	s.mu.Unlock()

	var tasks []model.Task
	err := s.transport.Get(ctx, tasksPath, query, &tasks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	entry := s.log.WithFields(logrus.Fields{
		"page":       page,
		"filter":     filter.String(),
		"generation": generation,
	})

	if generation != s.generation {
		entry.WithField("latest", s.generation).Debug("discarding superseded task fetch")
		return nil
	}

	if err != nil {
		opErr := newOpError(OpFetchTasks, MsgTasksFailed, err)
		entry.WithError(err).WithField("kind", opErr.Kind).Error("fetch tasks")
		s.errMsg = opErr.Message
		return opErr
	}

	// A backend that ignores limit must not grow the page.
	if len(tasks) > s.perPage {
		tasks = tasks[:s.perPage]
	}
	s.tasks = nonNil(tasks)
	s.hasMore = len(tasks) == s.perPage
	entry.WithField("count", len(tasks)).Debug("tasks loaded")
	return nil
}

// SetFilter replaces the active filter, returns to the first page and
// fetches it.
func (s *Store) SetFilter(ctx context.Context, filter model.Filter) error {
	s.mu.Lock()
	s.filter = filter
	s.page = 1
	s.mu.Unlock()

	return s.FetchTasks(ctx)
}

// ChangePage moves to page and fetches it. Pages below 1 are ignored.
func (s *Store) ChangePage(ctx context.Context, page int) error {
	if page < 1 {
		return nil
	}

	s.mu.Lock()
	s.page = page
	s.mu.Unlock()

	return s.FetchTasks(ctx)
}

// AddTask creates a task and puts the returned row at the front of the
// cache, dropping the oldest cached row if the page overflows. Errors are
// returned to the caller and never recorded in State().Error.
func (s *Store) AddTask(ctx context.Context, payload model.CreateTaskPayload) (model.Task, error) {
	var rows []model.Task
	if err := s.transport.Post(ctx, tasksPath, payload, &rows); err != nil {
		opErr := newOpError(OpAddTask, MsgCreateFailed, err)
		s.log.WithError(err).WithField("title", payload.Title).Error("create task")
		return model.Task{}, opErr
	}
	if len(rows) == 0 {
		return model.Task{}, nil
	}
	created := rows[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append([]model.Task{created}, s.tasks...)
	if len(s.tasks) > s.perPage {
		s.tasks = s.tasks[:s.perPage]
	}
	return created, nil
}

// UpdateTask applies a partial update and swaps the returned row into the
// cache at the same position. An id that is not cached is left alone.
func (s *Store) UpdateTask(ctx context.Context, id int64, payload model.UpdateTaskPayload) (model.Task, error) {
	var rows []model.Task
	if err := s.transport.Patch(ctx, tasksPath, api.ByID(id), payload, &rows); err != nil {
		opErr := newOpError(OpUpdateTask, MsgUpdateFailed, err)
		s.log.WithError(err).WithField("task_id", id).Error("update task")
		return model.Task{}, opErr
	}
	if len(rows) == 0 {
		return model.Task{}, nil
	}
	updated := rows[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(id)
	if index < 0 {
		s.log.WithField("task_id", id).Debug("updated task not cached")
		return updated, nil
	}
	s.tasks[index] = updated
	return updated, nil
}

// DeleteTask removes a task remotely and locally, then refreshes the page:
// an emptied page past the first steps back one page, anything else is
// refetched so the next row on the server fills the gap. Refetch failures
// land in State().Error; only the delete itself can fail the call.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	if err := s.transport.Delete(ctx, tasksPath, api.ByID(id), nil); err != nil {
		opErr := newOpError(OpDeleteTask, MsgDeleteFailed, err)
		s.log.WithError(err).WithField("task_id", id).Error("delete task")
		return opErr
	}

	s.mu.Lock()
	s.tasks = slices.DeleteFunc(s.tasks, func(task model.Task) bool { return task.ID == id })
	emptied := len(s.tasks) == 0
	page := s.page
	s.mu.Unlock()

	if emptied && page > 1 {
		_ = s.ChangePage(ctx, page-1)
		return nil
	}
	_ = s.FetchTasks(ctx)
	return nil
}

func (s *Store) taskQueryLocked() url.Values {
	query := url.Values{"order": {api.Order("created_at", true)}}
	query = api.Page(query, s.perPage, (s.page-1)*s.perPage)
	if column := s.filter.Column(); column != "" {
		query.Set(column, api.Eq(s.filter.Value))
	}
	return query
}

func (s *Store) indexLocked(id int64) int {
	return slices.IndexFunc(s.tasks, func(task model.Task) bool { return task.ID == id })
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
