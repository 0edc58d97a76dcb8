package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"tasktrack/internal/domain"
	"tasktrack/internal/repo"
	"tasktrack/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Store      *store.Store
	Repo       *repo.Repo
	ExportPath string
	BasePath   string
	Logger     *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_date"`
	Message string         `json:"message" example:"invalid date: \"2024-02-30\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// tasks serializes every Store call; the Store itself is single-writer.
type tasks struct {
	mu         sync.Mutex
	store      *store.Store
	exportPath string
}

func (t *tasks) with(fn func(s *store.Store) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(t.store)
}

// New returns an HTTP handler exposing the task store.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newAPIError(status, "", msg, details)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return huma.NewError(status, msg, errs...)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	hcfg := huma.DefaultConfig("tasktrack API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	t := &tasks{store: cfg.Store, exportPath: cfg.ExportPath}
	registerHealth(group)
	registerTasks(group, t)
	registerBulk(group, t)
	registerUndo(group, t)
	registerEvents(group, cfg.Repo)
	return router, nil
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrInvalidDate):
		return newAPIError(http.StatusBadRequest, "invalid_date", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, store.ErrIO):
		return newAPIError(http.StatusInternalServerError, "io_failure", "storage failure", map[string]any{"error": err.Error()})
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func taskNotFound(id int) huma.StatusError {
	return newAPIError(http.StatusNotFound, "not_found", fmt.Sprintf("task %d not found", id), map[string]any{"id": id})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type taskPath struct {
	ID int `path:"id" minimum:"1"`
}

type taskBody struct {
	Body domain.Task `json:"body"`
}

type taskListBody struct {
	Body TaskList `json:"body"`
}

func registerTasks(api huma.API, t *tasks) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		var created domain.Task
		err := t.with(func(s *store.Store) error {
			var err error
			created, err = s.Add(input.Body.Name, input.Body.DueDate, input.Body.addOptions())
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: created}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Sort     string `query:"sort" doc:"due_date, priority, name or status"`
		Category string `query:"category"`
		Pending  bool   `query:"pending" doc:"exclude completed tasks"`
	}) (*taskListBody, error) {
		var items []domain.Task
		err := t.with(func(s *store.Store) error {
			var err error
			items, err = s.List(store.ListOptions{
				SortBy:      store.SortKey(input.Sort),
				Category:    input.Category,
				PendingOnly: input.Pending,
			})
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskListBody{Body: TaskList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/search",
		Summary:     "Search tasks by name",
	}, func(ctx context.Context, input *struct {
		Q string `query:"q"`
	}) (*taskListBody, error) {
		var items []domain.Task
		_ = t.with(func(s *store.Store) error {
			items = s.Search(input.Q)
			return nil
		})
		return &taskListBody{Body: TaskList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "overdue-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/overdue",
		Summary:     "List overdue open tasks",
	}, func(ctx context.Context, _ *struct{}) (*taskListBody, error) {
		var items []domain.Task
		err := t.with(func(s *store.Store) error {
			var err error
			items, err = s.Overdue()
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskListBody{Body: TaskList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		var (
			task domain.Task
			ok   bool
		)
		_ = t.with(func(s *store.Store) error {
			task, ok = s.Get(input.ID)
			return nil
		})
		if !ok {
			return nil, taskNotFound(input.ID)
		}
		return &taskBody{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   int               `path:"id" minimum:"1"`
		Body UpdateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		var (
			task domain.Task
			ok   bool
		)
		err := t.with(func(s *store.Store) error {
			var err error
			if ok, err = s.Update(input.ID, input.Body.taskUpdate()); err != nil || !ok {
				return err
			}
			task, _ = s.Get(input.ID)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		if !ok {
			return nil, taskNotFound(input.ID)
		}
		return &taskBody{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		var ok bool
		err := t.with(func(s *store.Store) error {
			var err error
			ok, err = s.Delete(input.ID)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		if !ok {
			return nil, taskNotFound(input.ID)
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Deleted: true, ID: input.ID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "next-due-date",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/next-due",
		Summary:     "Next due date of a recurring task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body NextDueResponse `json:"body"`
	}, error) {
		var (
			task domain.Task
			ok   bool
		)
		_ = t.with(func(s *store.Store) error {
			task, ok = s.Get(input.ID)
			return nil
		})
		if !ok {
			return nil, taskNotFound(input.ID)
		}
		next, recurring, err := task.NextDueDate()
		if err != nil {
			return nil, handleError(err)
		}
		resp := NextDueResponse{TaskID: task.ID, Recurring: recurring}
		if recurring {
			resp.NextDueDate = next.Format(domain.DateLayout)
		}
		return &struct {
			Body NextDueResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerBulk(api huma.API, t *tasks) {
	huma.Register(api, huma.Operation{
		OperationID: "complete-all",
		Method:      http.MethodPost,
		Path:        "/tasks/complete-all",
		Summary:     "Mark every task completed",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*taskListBody, error) {
		var items []domain.Task
		err := t.with(func(s *store.Store) error {
			if err := s.MarkAllCompleted(); err != nil {
				return err
			}
			var err error
			items, err = s.List(store.ListOptions{})
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskListBody{Body: TaskList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-completed",
		Method:      http.MethodPost,
		Path:        "/tasks/archive",
		Summary:     "Move completed tasks to the archive file",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ArchiveResponse `json:"body"`
	}, error) {
		var resp ArchiveResponse
		err := t.with(func(s *store.Store) error {
			archived, err := s.ArchiveCompleted()
			resp = ArchiveResponse{Archived: archived, ArchiveFile: s.ArchivePath()}
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArchiveResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-csv",
		Method:      http.MethodPost,
		Path:        "/tasks/export",
		Summary:     "Export tasks to the configured CSV file",
		Errors:      []int{http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ExportResponse `json:"body"`
	}, error) {
		if t.exportPath == "" {
			return nil, newAPIError(http.StatusConflict, "export_disabled", "no export file configured", nil)
		}
		var count int
		err := t.with(func(s *store.Store) error {
			count = s.Len()
			return s.ExportCSV(t.exportPath)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ExportResponse `json:"body"`
		}{Body: ExportResponse{Path: t.exportPath, Count: count}}, nil
	})
}

func registerUndo(api huma.API, t *tasks) {
	huma.Register(api, huma.Operation{
		OperationID: "undo",
		Method:      http.MethodPost,
		Path:        "/undo",
		Summary:     "Undo the last mutation",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UndoResponse `json:"body"`
	}, error) {
		var resp UndoResponse
		err := t.with(func(s *store.Store) error {
			var err error
			resp.Undone, err = s.UndoLast()
			resp.Remaining = s.UndoDepth()
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UndoResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerEvents(api huma.API, r *repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent journal events",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		TaskID int    `query:"task_id"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if r == nil {
			return nil, newAPIError(http.StatusNotFound, "journal_disabled", "journal is disabled", nil)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		f := repo.EventFilter{Type: input.Type}
		if input.TaskID > 0 {
			f.TaskID = &input.TaskID
		}
		items, err := r.LatestEventsFrom(ctx, limit+1, cursorID, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{id}",
		Summary:     "Get a journal event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body EventResponse `json:"body"`
	}, error) {
		if r == nil {
			return nil, newAPIError(http.StatusNotFound, "journal_disabled", "journal is disabled", nil)
		}
		evt, err := r.GetEvent(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventResponse `json:"body"`
		}{Body: eventResponse(evt)}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
