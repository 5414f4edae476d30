package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragmag/ragmag"
	"github.com/ragmag/ragmag/infrastructure/api/middleware"
)

// TasksRouter exposes ingest task status.
type TasksRouter struct {
	client *ragmag.Client
	logger *slog.Logger
}

// NewTasksRouter creates a new TasksRouter.
func NewTasksRouter(client *ragmag.Client) *TasksRouter {
	return &TasksRouter{client: client, logger: client.Logger()}
}

// Routes returns the chi router for task endpoints.
func (r *TasksRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/{id}", r.Get)

	return router
}

// Get handles GET /api/v1/tasks/{id}.
func (r *TasksRouter) Get(w http.ResponseWriter, req *http.Request) {
	t, err := r.client.Ingest.Task(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, taskToDTO(t))
}
