package v1

import (
	"net/http"

	"github.com/ragmag/ragmag"
	"github.com/ragmag/ragmag/infrastructure/api/middleware"
	"github.com/ragmag/ragmag/infrastructure/api/v1/dto"
)

// HealthHandler reports service health and the current document count.
func HealthHandler(client *ragmag.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		count, err := client.Documents.Count(req.Context())
		if err != nil {
			middleware.WriteError(w, req, err, client.Logger())
			return
		}
		pending, err := client.Ingest.PendingCount(req.Context())
		if err != nil {
			middleware.WriteError(w, req, err, client.Logger())
			return
		}

		middleware.WriteJSON(w, http.StatusOK, dto.HealthResponse{
			Status:       "healthy",
			Documents:    count,
			PendingTasks: pending,
		})
	}
}
