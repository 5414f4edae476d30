package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragmag/ragmag"
	"github.com/ragmag/ragmag/infrastructure/api/middleware"
	"github.com/ragmag/ragmag/infrastructure/api/v1/dto"
)

// QueryRouter handles the question-answering endpoint.
type QueryRouter struct {
	client *ragmag.Client
	logger *slog.Logger
}

// NewQueryRouter creates a new QueryRouter.
func NewQueryRouter(client *ragmag.Client) *QueryRouter {
	return &QueryRouter{client: client, logger: client.Logger()}
}

// Routes returns the chi router for query endpoints.
func (r *QueryRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Ask)

	return router
}

// Ask handles POST /api/v1/query.
func (r *QueryRouter) Ask(w http.ResponseWriter, req *http.Request) {
	var body dto.QueryRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req,
			middleware.NewAPIError(http.StatusBadRequest, "invalid JSON body", err), r.logger)
		return
	}

	answer, err := r.client.Query.Ask(req.Context(), body.Question, body.TopK)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	sources := make([]dto.Source, len(answer.Sources))
	for i, s := range answer.Sources {
		sources[i] = dto.Source{
			DocumentID: s.DocumentID,
			Filename:   s.Filename,
			PageNumber: s.PageNumber,
			ImageRef:   s.ImageRef,
			Score:      s.Score,
			Preview:    s.Preview,
		}
	}
	middleware.WriteJSON(w, http.StatusOK, dto.QueryResponse{
		Answer:           answer.Text,
		Sources:          sources,
		ProcessingTimeMS: answer.ProcessingTime.Milliseconds(),
	})
}
