package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/model"
)

type call struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type handlerFunc func(c call) (any, error)

// fakeTransport answers requests from a handler and records them. Results are
// passed through JSON so they decode into whatever the store asked for.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []call
	handler handlerFunc
}

func newFake(handler handlerFunc) *fakeTransport {
	return &fakeTransport{handler: handler}
}

func (f *fakeTransport) do(method, path string, query url.Values, body, out any) error {
	c := call{Method: method, Path: path, Query: query, Body: body}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	handler := f.handler
	f.mu.Unlock()

	result, err := handler(c)
	if err != nil {
		return err
	}
	if out == nil || result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeTransport) Get(_ context.Context, path string, query url.Values, out any) error {
	return f.do(http.MethodGet, path, query, nil, out)
}

func (f *fakeTransport) Post(_ context.Context, path string, body, out any) error {
	return f.do(http.MethodPost, path, nil, body, out)
}

func (f *fakeTransport) Patch(_ context.Context, path string, query url.Values, body, out any) error {
	return f.do(http.MethodPatch, path, query, body, out)
}

func (f *fakeTransport) Delete(_ context.Context, path string, query url.Values, out any) error {
	return f.do(http.MethodDelete, path, query, nil, out)
}

func (f *fakeTransport) setHandler(handler handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeTransport) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeTransport) count(method string) int {
	n := 0
	for _, c := range f.recorded() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *fakeTransport) last() call {
	calls := f.recorded()
	return calls[len(calls)-1]
}

func makeTasks(firstID int64, n int) []model.Task {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tasks := make([]model.Task, 0, n)
	for i := 0; i < n; i++ {
		id := firstID + int64(i)
		tasks = append(tasks, model.Task{
			ID:         id,
			CreatedAt:  created.Add(-time.Duration(id) * time.Minute),
			Title:      "Task " + strconv.FormatInt(id, 10),
			Priority:   model.PriorityMedium,
			CategoryID: 1,
		})
	}
	return tasks
}

func taskIDs(tasks []model.Task) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

// pagedHandler serves total tasks, ids 1..total, honoring limit and offset.
func pagedHandler(total int) handlerFunc {
	all := makeTasks(1, total)
	return func(c call) (any, error) {
		if c.Method != http.MethodGet {
			return nil, nil
		}
		limit, _ := strconv.Atoi(c.Query.Get("limit"))
		offset, _ := strconv.Atoi(c.Query.Get("offset"))
		if offset >= len(all) {
			return []model.Task{}, nil
		}
		end := min(offset+limit, len(all))
		return all[offset:end], nil
	}
}

func newTestStore(handler handlerFunc) (*Store, *fakeTransport) {
	fake := newFake(handler)
	return New(fake, Options{ItemsPerPage: 6}), fake
}

func TestNewDefaults(t *testing.T) {
	s := New(newFake(pagedHandler(0)), Options{})
	state := s.State()
	require.Equal(t, DefaultItemsPerPage, state.ItemsPerPage)
	require.Equal(t, 1, state.CurrentPage)
	require.Equal(t, model.AllTasks(), state.Filter)
	require.False(t, state.Loading)
	require.Empty(t, state.Error)
}

func TestFetchTasksPaginationScenario(t *testing.T) {
	s, fake := newTestStore(pagedHandler(9))
	ctx := context.Background()

	require.NoError(t, s.FetchTasks(ctx))
	state := s.State()
	require.Len(t, state.Tasks, 6)
	require.True(t, state.HasMoreTasks)
	require.False(t, state.Loading)

	q := fake.last().Query
	require.Equal(t, "created_at.desc", q.Get("order"))
	require.Equal(t, "6", q.Get("limit"))
	require.Equal(t, "0", q.Get("offset"))
	require.Len(t, q, 3)

	require.NoError(t, s.ChangePage(ctx, 2))
	state = s.State()
	require.Equal(t, 2, state.CurrentPage)
	require.Len(t, state.Tasks, 3)
	require.False(t, state.HasMoreTasks)
	require.Equal(t, []int64{7, 8, 9}, taskIDs(state.Tasks))
	require.Equal(t, "6", fake.last().Query.Get("offset"))
}

func TestFetchTasksTruncatesOversizedPage(t *testing.T) {
	s, _ := newTestStore(func(call) (any, error) { return makeTasks(1, 10), nil })

	require.NoError(t, s.FetchTasks(context.Background()))
	state := s.State()
	require.Len(t, state.Tasks, 6)
	require.True(t, state.HasMoreTasks)
}

func TestChangePageBelowOneIsIgnored(t *testing.T) {
	s, fake := newTestStore(pagedHandler(20))
	ctx := context.Background()

	require.NoError(t, s.ChangePage(ctx, 3))
	calls := fake.count(http.MethodGet)

	for _, page := range []int{0, -1, -100} {
		require.NoError(t, s.ChangePage(ctx, page))
	}

	require.Equal(t, 3, s.State().CurrentPage)
	require.Equal(t, calls, fake.count(http.MethodGet))
	require.Empty(t, s.State().Error)
}

func TestSetFilterResetsPageAndReplacesTasks(t *testing.T) {
	s, fake := newTestStore(pagedHandler(30))
	ctx := context.Background()

	require.NoError(t, s.ChangePage(ctx, 3))
	require.Equal(t, []int64{13, 14, 15, 16, 17, 18}, taskIDs(s.State().Tasks))

	high := makeTasks(100, 2)
	fake.setHandler(func(c call) (any, error) { return high, nil })

	require.NoError(t, s.SetFilter(ctx, model.PriorityFilter(model.PriorityHigh)))

	state := s.State()
	require.Equal(t, 1, state.CurrentPage)
	require.Equal(t, model.PriorityFilter(model.PriorityHigh), state.Filter)
	require.Equal(t, []int64{100, 101}, taskIDs(state.Tasks))
	require.False(t, state.HasMoreTasks)

	q := fake.last().Query
	require.Equal(t, "eq.high", q.Get("priority"))
	require.Equal(t, "0", q.Get("offset"))
}

func TestFilterPredicates(t *testing.T) {
	tests := []struct {
		name   string
		filter model.Filter
		column string
		value  string
	}{
		{name: "category", filter: model.CategoryFilter(4), column: "category_id", value: "eq.4"},
		{name: "status", filter: model.StatusFilter(true), column: "completed", value: "eq.true"},
		{name: "priority", filter: model.PriorityFilter(model.PriorityLow), column: "priority", value: "eq.low"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, fake := newTestStore(pagedHandler(0))
			require.NoError(t, s.SetFilter(context.Background(), tc.filter))

			q := fake.last().Query
			require.Equal(t, tc.value, q.Get(tc.column))
			require.Len(t, q, 4, "exactly one predicate besides order, limit and offset")
		})
	}

	t.Run("all", func(t *testing.T) {
		s, fake := newTestStore(pagedHandler(0))
		require.NoError(t, s.SetFilter(context.Background(), model.CategoryFilter(2)))
		require.NoError(t, s.SetFilter(context.Background(), model.AllTasks()))
		require.Len(t, fake.last().Query, 3)
	})
}

func TestFetchTasksFailureKeepsStaleTasks(t *testing.T) {
	s, fake := newTestStore(pagedHandler(4))
	ctx := context.Background()
	require.NoError(t, s.FetchTasks(ctx))

	boom := &api.Error{Kind: api.KindStatus, StatusCode: http.StatusInternalServerError, Message: "boom"}
	fake.setHandler(func(call) (any, error) { return nil, boom })

	err := s.FetchTasks(ctx)
	require.Error(t, err)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, OpFetchTasks, opErr.Op)
	require.Equal(t, api.KindStatus, opErr.Kind)
	require.Equal(t, MsgTasksFailed, opErr.Message)
	require.ErrorIs(t, err, boom)

	state := s.State()
	require.Equal(t, MsgTasksFailed, state.Error)
	require.False(t, state.Loading)
	require.Equal(t, []int64{1, 2, 3, 4}, taskIDs(state.Tasks))

	fake.setHandler(pagedHandler(2))
	require.NoError(t, s.FetchTasks(ctx))
	require.Empty(t, s.State().Error, "a new fetch clears the previous error")
}

func TestFetchCategories(t *testing.T) {
	categories := []model.Category{
		{ID: 2, Name: "Home", Color: "#00ff00", ImageFilter: model.ImageFilterSepia},
		{ID: 1, Name: "Work", Color: "#ff0000", ImageFilter: model.ImageFilterDefault},
	}
	s, fake := newTestStore(func(c call) (any, error) { return categories, nil })
	ctx := context.Background()

	require.NoError(t, s.FetchCategories(ctx))
	require.Equal(t, "/categories", fake.last().Path)
	require.Equal(t, "name.asc", fake.last().Query.Get("order"))
	if diff := cmp.Diff(categories, s.State().Categories); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}

	fake.setHandler(func(call) (any, error) { return nil, errors.New("network down") })
	err := s.FetchCategories(ctx)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, api.KindTransport, opErr.Kind)

	state := s.State()
	require.Equal(t, MsgCategoriesFailed, state.Error)
	require.Len(t, state.Categories, 2)
	require.False(t, state.Loading)
}

func TestAddTaskPrependsAndEvicts(t *testing.T) {
	s, fake := newTestStore(pagedHandler(6))
	ctx := context.Background()
	require.NoError(t, s.FetchTasks(ctx))

	created := makeTasks(50, 1)
	fake.setHandler(func(c call) (any, error) {
		require.Equal(t, http.MethodPost, c.Method)
		require.Equal(t, "/tasks", c.Path)
		return created, nil
	})

	task, err := s.AddTask(ctx, model.CreateTaskPayload{Title: "Task 50", CategoryID: 1})
	require.NoError(t, err)
	require.Equal(t, int64(50), task.ID)

	state := s.State()
	require.Equal(t, []int64{50, 1, 2, 3, 4, 5}, taskIDs(state.Tasks))
}

func TestAddTaskBelowPageSizeKeepsAll(t *testing.T) {
	s, fake := newTestStore(pagedHandler(2))
	ctx := context.Background()
	require.NoError(t, s.FetchTasks(ctx))

	fake.setHandler(func(call) (any, error) { return makeTasks(9, 1), nil })
	_, err := s.AddTask(ctx, model.CreateTaskPayload{Title: "Task 9", CategoryID: 1})
	require.NoError(t, err)
	require.Equal(t, []int64{9, 1, 2}, taskIDs(s.State().Tasks))
}

func TestAddTaskEmptyEchoLeavesCache(t *testing.T) {
	s, fake := newTestStore(pagedHandler(2))
	ctx := context.Background()
	require.NoError(t, s.FetchTasks(ctx))

	fake.setHandler(func(call) (any, error) { return []model.Task{}, nil })
	task, err := s.AddTask(ctx, model.CreateTaskPayload{Title: "ghost", CategoryID: 1})
	require.NoError(t, err)
	require.Zero(t, task.ID)
	require.Equal(t, []int64{1, 2}, taskIDs(s.State().Tasks))
}

func TestWriteFailuresPropagateWithoutTouchingErrorState(t *testing.T) {
	s, fake := newTestStore(pagedHandler(3))
	ctx := context.Background()
	require.NoError(t, s.FetchTasks(ctx))
	before := s.State()

	rejected := &api.Error{Kind: api.KindStatus, StatusCode: http.StatusConflict, Message: "violates foreign key"}
	fake.setHandler(func(call) (any, error) { return nil, rejected })

	_, err := s.AddTask(ctx, model.CreateTaskPayload{Title: "x", CategoryID: 99})
	require.ErrorIs(t, err, rejected)

	title := "renamed"
	_, err = s.UpdateTask(ctx, 1, model.UpdateTaskPayload{Title: &title})
	require.ErrorIs(t, err, rejected)

	err = s.DeleteTask(ctx, 2)
	require.ErrorIs(t, err, rejected)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, OpDeleteTask, opErr.Op)
	require.Equal(t, MsgDeleteFailed, opErr.Message)

	after := s.State()
	require.Empty(t, after.Error)
	require.Equal(t, before, after)
}

func TestUpdateTaskReplacesInPlace(t *testing.T) {
	s, fake := newTestStore(pagedHandler(3))
	ctx := context.Background()
	require.NoError(t, s.FetchTasks(ctx))

	done := true
	fake.setHandler(func(c call) (any, error) {
		require.Equal(t, http.MethodPatch, c.Method)
		require.Equal(t, "eq.2", c.Query.Get("id"))
		updated := makeTasks(2, 1)
		updated[0].Completed = true
		updated[0].Title = "Finished"
		return updated, nil
	})

	task, err := s.UpdateTask(ctx, 2, model.UpdateTaskPayload{Completed: &done})
	require.NoError(t, err)
	require.True(t, task.Completed)

	state := s.State()
	require.Equal(t, []int64{1, 2, 3}, taskIDs(state.Tasks))
	require.Equal(t, "Finished", state.Tasks[1].Title)
	require.True(t, state.Tasks[1].Completed)
}

func TestUpdateTaskCacheMissIsNoop(t *testing.T) {
	s, fake := newTestStore(pagedHandler(3))
	ctx := context.Background()
	require.NoError(t, s.FetchTasks(ctx))
	before := s.State().Tasks

	fake.setHandler(func(call) (any, error) { return makeTasks(42, 1), nil })
	title := "elsewhere"
	task, err := s.UpdateTask(ctx, 42, model.UpdateTaskPayload{Title: &title})
	require.NoError(t, err)
	require.Equal(t, int64(42), task.ID)

	if diff := cmp.Diff(before, s.State().Tasks); diff != "" {
		t.Fatalf("tasks changed on cache miss (-before +after):\n%s", diff)
	}
	_, cached := s.Task(42)
	require.False(t, cached)
}

func TestDeleteLastTaskOnPageTwoStepsBack(t *testing.T) {
	s, fake := newTestStore(pagedHandler(7))
	ctx := context.Background()

	require.NoError(t, s.ChangePage(ctx, 2))
	require.Equal(t, []int64{7}, taskIDs(s.State().Tasks))

	remaining := pagedHandler(6)
	fake.setHandler(func(c call) (any, error) {
		if c.Method == http.MethodDelete {
			require.Equal(t, "eq.7", c.Query.Get("id"))
			return nil, nil
		}
		return remaining(c)
	})
	getsBefore := fake.count(http.MethodGet)

	require.NoError(t, s.DeleteTask(ctx, 7))

	state := s.State()
	require.Equal(t, 1, state.CurrentPage)
	require.Equal(t, 1, fake.count(http.MethodGet)-getsBefore)
	require.Equal(t, "0", fake.last().Query.Get("offset"))
	require.Len(t, state.Tasks, 6)
}

func TestDeleteTaskRefetchesCurrentPage(t *testing.T) {
	s, fake := newTestStore(pagedHandler(8))
	ctx := context.Background()
	require.NoError(t, s.FetchTasks(ctx))

	// After deleting id 3 the server has 1,2,4,5,6,7,8.
	rest := append(makeTasks(1, 2), makeTasks(4, 5)...)
	fake.setHandler(func(c call) (any, error) {
		if c.Method == http.MethodDelete {
			return nil, nil
		}
		return rest[:6], nil
	})
	getsBefore := fake.count(http.MethodGet)

	require.NoError(t, s.DeleteTask(ctx, 3))

	state := s.State()
	require.Equal(t, 1, state.CurrentPage)
	require.Equal(t, 1, fake.count(http.MethodGet)-getsBefore)
	require.Equal(t, []int64{1, 2, 4, 5, 6, 7}, taskIDs(state.Tasks))
}

func TestDeleteTaskRefetchFailureIsAbsorbed(t *testing.T) {
	s, fake := newTestStore(pagedHandler(3))
	ctx := context.Background()
	require.NoError(t, s.FetchTasks(ctx))

	fake.setHandler(func(c call) (any, error) {
		if c.Method == http.MethodDelete {
			return nil, nil
		}
		return nil, errors.New("connection reset")
	})

	require.NoError(t, s.DeleteTask(ctx, 1))
	state := s.State()
	require.Equal(t, []int64{2, 3}, taskIDs(state.Tasks))
	require.Equal(t, MsgTasksFailed, state.Error)
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	stale := makeTasks(1, 6)
	fresh := makeTasks(200, 2)

	s, _ := newTestStore(func(c call) (any, error) {
		if c.Query.Get("priority") == "" {
			close(started)
			<-release
			return stale, nil
		}
		return fresh, nil
	})
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() { errCh <- s.FetchTasks(ctx) }()
	<-started

	require.True(t, s.State().Loading)
	require.NoError(t, s.SetFilter(ctx, model.PriorityFilter(model.PriorityHigh)))
	require.True(t, s.State().Loading, "the first fetch is still in flight")

	close(release)
	require.NoError(t, <-errCh)

	state := s.State()
	require.False(t, state.Loading)
	require.Equal(t, []int64{200, 201}, taskIDs(state.Tasks))
	require.False(t, state.HasMoreTasks)
}

func TestStateReturnsCopies(t *testing.T) {
	s, _ := newTestStore(pagedHandler(2))
	require.NoError(t, s.FetchTasks(context.Background()))

	state := s.State()
	state.Tasks[0].Title = "mutated"

	task, ok := s.Task(1)
	require.True(t, ok)
	require.Equal(t, "Task 1", task.Title)
}
