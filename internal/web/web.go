package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/db"
	"github.com/Joseda-hg/taskdeck/internal/logging"
	"github.com/Joseda-hg/taskdeck/internal/model"
)

// reserved query parameters that are not column filters.
var reservedParams = map[string]struct{}{
	"order":  {},
	"limit":  {},
	"offset": {},
	"select": {},
}

var (
	errBadOrder  = errors.New("invalid order clause")
	errBadPaging = errors.New("invalid limit or offset")
	errOperator  = errors.New("only eq filters are supported")
)

type Options struct {
	// APIKey, when set, must be sent in the apikey header of every request.
	APIKey string
	Logger logrus.FieldLogger
}

// Server exposes db.Store as a PostgREST-style collection API.
type Server struct {
	store  *db.Store
	apiKey string
	log    *logrus.Entry
}

func NewServer(store *db.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{store: store, apiKey: opts.APIKey, log: logging.Component(logger, "web")}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", s.listTasksHandler)
	mux.HandleFunc("POST /tasks", s.createTaskHandler)
	mux.HandleFunc("PATCH /tasks", s.updateTasksHandler)
	mux.HandleFunc("DELETE /tasks", s.deleteTasksHandler)
	mux.HandleFunc("GET /categories", s.listCategoriesHandler)
	mux.HandleFunc("GET /task_history", s.listHistoryHandler)
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", MetricsHandler())

	var handler http.Handler = mux
	handler = s.requireAPIKey(handler)
	handler = MetricsMiddleware(handler)
	handler = LoggingMiddleware(s.log, handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

func (s *Server) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(db.TableTasks, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tasks, err := s.store.ListTasks(r.Context(), query)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateTaskPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := s.store.CreateTask(r.Context(), payload)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	w.Header().Set("Location", "/tasks?id="+api.Eq(created.ID))
	s.writeRows(w, r, http.StatusCreated, []model.Task{created})
}

func (s *Server) updateTasksHandler(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(db.TableTasks, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var payload model.UpdateTaskPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := s.store.UpdateTasks(r.Context(), query.Predicates, payload)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeRows(w, r, http.StatusOK, updated)
}

func (s *Server) deleteTasksHandler(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(db.TableTasks, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	deleted, err := s.store.DeleteTasks(r.Context(), query.Predicates)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeRows(w, r, http.StatusOK, deleted)
}

func (s *Server) listCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(db.TableCategories, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	categories, err := s.store.ListCategories(r.Context(), query)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) listHistoryHandler(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(db.TableHistory, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	history, err := s.store.ListHistory(r.Context(), query)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get(api.HeaderAPIKey) != s.apiKey {
			writeErrorBody(w, http.StatusUnauthorized, api.ErrorBody{Code: "PGRST301", Message: "invalid or missing api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeRows honors Prefer: return=representation; without it a mutation
// answers with an empty body.
func (s *Server) writeRows(w http.ResponseWriter, r *http.Request, status int, rows []model.Task) {
	if !prefersRepresentation(r) {
		if status == http.StatusCreated {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, status, rows)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrTitleRequired):
		writeErrorBody(w, http.StatusBadRequest, api.ErrorBody{Code: "23502", Message: err.Error()})
	case errors.Is(err, db.ErrCategoryNotFound):
		writeErrorBody(w, http.StatusConflict, api.ErrorBody{Code: "23503", Message: err.Error()})
	case errors.Is(err, db.ErrInvalidValue), errors.Is(err, db.ErrUnknownColumn),
		errors.Is(err, db.ErrNothingToUpdate), errors.Is(err, db.ErrFilterRequired):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, context.Canceled):
		s.log.WithError(err).Debug("request canceled")
	default:
		requestID := RequestIDFromContext(r.Context())
		s.log.WithError(err).WithField("request_id", requestID).Error("store failure")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func queryFromRequest(table db.Table, values url.Values) (db.Query, error) {
	var query db.Query

	if order := values.Get("order"); order != "" {
		column, direction, _ := strings.Cut(order, ".")
		if !db.ValidOrderColumn(table, column) {
			return db.Query{}, fmt.Errorf("%w: %q", errBadOrder, order)
		}
		switch direction {
		case "", "asc":
		case "desc":
			query.Desc = true
		default:
			return db.Query{}, fmt.Errorf("%w: %q", errBadOrder, order)
		}
		query.OrderBy = column
	}

	var err error
	if query.Limit, err = nonNegative(values.Get("limit")); err != nil {
		return db.Query{}, err
	}
	if query.Offset, err = nonNegative(values.Get("offset")); err != nil {
		return db.Query{}, err
	}

	for column, raws := range values {
		if _, ok := reservedParams[column]; ok {
			continue
		}
		for _, raw := range raws {
			operand, ok := strings.CutPrefix(raw, "eq.")
			if !ok {
				return db.Query{}, fmt.Errorf("%w: %s=%s", errOperator, column, raw)
			}
			pred, err := db.ParsePredicate(table, column, operand)
			if err != nil {
				return db.Query{}, err
			}
			query.Predicates = append(query.Predicates, pred)
		}
	}

	return query, nil
}

func nonNegative(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", errBadPaging, value)
	}
	return n, nil
}

func prefersRepresentation(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get(api.HeaderPrefer), ",") {
		if strings.TrimSpace(part) == api.PreferRepresentation {
			return true
		}
	}
	return false
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeErrorBody(w, status, api.ErrorBody{Code: strconv.Itoa(status), Message: err.Error()})
}

func writeErrorBody(w http.ResponseWriter, status int, body api.ErrorBody) {
	writeJSON(w, status, body)
}
