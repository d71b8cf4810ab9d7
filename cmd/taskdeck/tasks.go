package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/model"
	"github.com/Joseda-hg/taskdeck/internal/store"
)

var (
	errOneFilter     = errors.New("only one of --category, --status, --priority may be set")
	errCategoryFlag  = errors.New("--category is required")
	errTitleArg      = errors.New("a title is required")
	errTaskIDArg     = errors.New("exactly one task id is required")
	errNoChanges     = errors.New("nothing to update")
	errDoneAndOpen   = errors.New("--done and --open are mutually exclusive")
	errInvalidStatus = errors.New("--status must be open or done")
)

// session is a Task Store wired to the configured remote API.
type session struct {
	client *api.Client
	store  *store.Store
}

func openSession(env *environment, global *globalFlags) (*session, error) {
	cfg, _, err := global.load(env.vars)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg, env)
	if err != nil {
		return nil, err
	}

	client, err := api.New(api.Options{
		BaseURL: cfg.APIURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	return &session{
		client: client,
		store:  store.New(client, store.Options{ItemsPerPage: cfg.ItemsPerPage, Logger: logger}),
	}, nil
}

func runList(ctx context.Context, env *environment, args []string) error {
	var global globalFlags
	fs := newFlagSet("list", env, &global)
	page := fs.Int("page", 1, "page number")
	category := fs.Int64("category", 0, "only tasks of this category id")
	status := fs.String("status", "", "only open or done tasks")
	priority := fs.String("priority", "", "only tasks of this priority")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	filter, err := filterFromFlags(fs.Changed("category"), *category, *status, *priority)
	if err != nil {
		return err
	}

	s, err := openSession(env, &global)
	if err != nil {
		return err
	}

	// Category names are decoration; a failed load still lists tasks.
	_ = s.store.FetchCategories(ctx)

	if filter.Type != model.FilterAll {
		if err := s.store.SetFilter(ctx, filter); err != nil {
			return err
		}
	}
	if *page != 1 || filter.Type == model.FilterAll {
		if err := s.store.ChangePage(ctx, *page); err != nil {
			return err
		}
	}

	state := s.store.State()
	if state.CurrentPage != *page {
		return fmt.Errorf("%w: invalid page %d", errUsage, *page)
	}
	printTasks(env.stdout, state)
	return nil
}

func filterFromFlags(categorySet bool, category int64, status, priority string) (model.Filter, error) {
	set := 0
	filter := model.AllTasks()

	if categorySet {
		set++
		filter = model.CategoryFilter(category)
	}
	if status != "" {
		set++
		switch status {
		case "open":
			filter = model.StatusFilter(false)
		case "done":
			filter = model.StatusFilter(true)
		default:
			return model.Filter{}, fmt.Errorf("%w: %w", errUsage, errInvalidStatus)
		}
	}
	if priority != "" {
		set++
		p, err := parsePriority(priority)
		if err != nil {
			return model.Filter{}, err
		}
		filter = model.PriorityFilter(p)
	}

	if set > 1 {
		return model.Filter{}, fmt.Errorf("%w: %w", errUsage, errOneFilter)
	}
	return filter, nil
}

func runAdd(ctx context.Context, env *environment, args []string) error {
	var global globalFlags
	fs := newFlagSet("add", env, &global)
	category := fs.Int64("category", 0, "category id")
	description := fs.String("description", "", "task description")
	priority := fs.String("priority", "", "low, medium or high")
	due := fs.String("due", "", "due date (YYYY-MM-DD)")
	imageURL := fs.String("image-url", "", "image URL")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	title := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if title == "" {
		return fmt.Errorf("%w: %w", errUsage, errTitleArg)
	}
	if !fs.Changed("category") {
		return fmt.Errorf("%w: %w", errUsage, errCategoryFlag)
	}

	payload := model.CreateTaskPayload{Title: title, CategoryID: *category}
	if fs.Changed("description") {
		payload.Description = description
	}
	if *priority != "" {
		p, err := parsePriority(*priority)
		if err != nil {
			return err
		}
		payload.Priority = p
	}
	if *due != "" {
		date, err := parseDue(*due)
		if err != nil {
			return err
		}
		payload.DueDate = &date
	}
	if fs.Changed("image-url") {
		payload.ImageURL = imageURL
	}

	s, err := openSession(env, &global)
	if err != nil {
		return err
	}

	created, err := s.store.AddTask(ctx, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "created #%d %s\n", created.ID, created.Title)
	return nil
}

func runUpdate(ctx context.Context, env *environment, args []string) error {
	var global globalFlags
	fs := newFlagSet("update", env, &global)
	title := fs.String("title", "", "new title")
	category := fs.Int64("category", 0, "new category id")
	description := fs.String("description", "", "new description")
	priority := fs.String("priority", "", "new priority")
	due := fs.String("due", "", "new due date (YYYY-MM-DD)")
	done := fs.Bool("done", false, "mark completed")
	open := fs.Bool("open", false, "mark not completed")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	id, err := taskIDArg(fs.Args())
	if err != nil {
		return err
	}

	var payload model.UpdateTaskPayload
	if fs.Changed("title") {
		payload.Title = title
	}
	if fs.Changed("category") {
		payload.CategoryID = category
	}
	if fs.Changed("description") {
		payload.Description = description
	}
	if fs.Changed("priority") {
		p, err := parsePriority(*priority)
		if err != nil {
			return err
		}
		payload.Priority = &p
	}
	if fs.Changed("due") {
		date, err := parseDue(*due)
		if err != nil {
			return err
		}
		payload.DueDate = &date
	}
	switch {
	case *done && *open:
		return fmt.Errorf("%w: %w", errUsage, errDoneAndOpen)
	case *done:
		payload.Completed = done
	case *open:
		completed := false
		payload.Completed = &completed
	}
	if payload.Empty() {
		return fmt.Errorf("%w: %w", errUsage, errNoChanges)
	}

	return updateTask(ctx, env, &global, id, payload)
}

func runDone(ctx context.Context, env *environment, args []string) error {
	var global globalFlags
	fs := newFlagSet("done", env, &global)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	id, err := taskIDArg(fs.Args())
	if err != nil {
		return err
	}

	completed := true
	return updateTask(ctx, env, &global, id, model.UpdateTaskPayload{Completed: &completed})
}

func updateTask(ctx context.Context, env *environment, global *globalFlags, id int64, payload model.UpdateTaskPayload) error {
	s, err := openSession(env, global)
	if err != nil {
		return err
	}

	updated, err := s.store.UpdateTask(ctx, id, payload)
	if err != nil {
		return err
	}
	if updated.ID == 0 {
		return fmt.Errorf("task #%d not found", id)
	}
	fmt.Fprintf(env.stdout, "updated #%d %s\n", updated.ID, updated.Title)
	return nil
}

func runRemove(ctx context.Context, env *environment, args []string) error {
	var global globalFlags
	fs := newFlagSet("rm", env, &global)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	id, err := taskIDArg(fs.Args())
	if err != nil {
		return err
	}

	s, err := openSession(env, &global)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "deleted #%d\n", id)
	return nil
}

func runCategories(ctx context.Context, env *environment, args []string) error {
	var global globalFlags
	fs := newFlagSet("categories", env, &global)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	s, err := openSession(env, &global)
	if err != nil {
		return err
	}
	if err := s.store.FetchCategories(ctx); err != nil {
		return err
	}

	for _, category := range s.store.State().Categories {
		fmt.Fprintf(env.stdout, "%3d  %-12s %s\n", category.ID, category.Name, category.Color)
	}
	return nil
}

func runHistory(ctx context.Context, env *environment, args []string) error {
	var global globalFlags
	fs := newFlagSet("history", env, &global)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	id, err := taskIDArg(fs.Args())
	if err != nil {
		return err
	}

	s, err := openSession(env, &global)
	if err != nil {
		return err
	}

	query := url.Values{
		"task_id": {api.Eq(id)},
		"order":   {api.Order("id", false)},
	}
	var entries []model.HistoryEntry
	if err := s.client.Get(ctx, "/task_history", query, &entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(env.stdout, "no history for #%d\n", id)
		return nil
	}

	for _, entry := range entries {
		fmt.Fprintf(env.stdout, "%s  %-8s %s\n", entry.CreatedAt.Local().Format("2006-01-02 15:04"), entry.EventType, entry.Details)
	}
	return nil
}

func printTasks(w io.Writer, state store.State) {
	if len(state.Tasks) == 0 {
		fmt.Fprintf(w, "no tasks (page %d, %s)\n", state.CurrentPage, state.Filter)
		return
	}

	names := make(map[int64]string, len(state.Categories))
	for _, category := range state.Categories {
		names[category.ID] = category.Name
	}

	for _, task := range state.Tasks {
		fmt.Fprintln(w, formatTask(task, names))
	}

	footer := fmt.Sprintf("page %d, %s", state.CurrentPage, state.Filter)
	if state.HasMoreTasks {
		footer += fmt.Sprintf(", more with --page %d", state.CurrentPage+1)
	}
	fmt.Fprintln(w, footer)
}

func formatTask(task model.Task, categories map[int64]string) string {
	check := " "
	if task.Completed {
		check = "x"
	}

	category, ok := categories[task.CategoryID]
	if !ok {
		category = "category " + strconv.FormatInt(task.CategoryID, 10)
	}

	details := []string{string(task.Priority), category}
	if task.DueDate != nil {
		details = append(details, "due "+task.DueDate.String())
	}
	details = append(details, "created "+humanize.Time(task.CreatedAt))

	return fmt.Sprintf("#%d [%s] %s (%s)", task.ID, check, task.Title, strings.Join(details, ", "))
}

func parsePriority(value string) (model.Priority, error) {
	p := model.Priority(strings.ToLower(value))
	if !p.Valid() {
		return "", fmt.Errorf("%w: invalid priority %q", errUsage, value)
	}
	return p, nil
}

func parseDue(value string) (model.Date, error) {
	date, err := model.ParseDate(value)
	if err != nil {
		return model.Date{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	return date, nil
}

func taskIDArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: %w", errUsage, errTaskIDArg)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid task id %q", errUsage, args[0])
	}
	return id, nil
}
