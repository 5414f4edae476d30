package v1

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ragmag/ragmag"
	"github.com/ragmag/ragmag/infrastructure/api/middleware"
)

// ImagesRouter streams stored page images.
type ImagesRouter struct {
	client *ragmag.Client
	logger *slog.Logger
}

// NewImagesRouter creates a new ImagesRouter.
func NewImagesRouter(client *ragmag.Client) *ImagesRouter {
	return &ImagesRouter{client: client, logger: client.Logger()}
}

// Routes returns the chi router for image endpoints.
func (r *ImagesRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/{document_id}/{page}", r.Get)

	return router
}

// Get handles GET /api/v1/images/{document_id}/{page}. The image bytes
// are streamed, not buffered.
func (r *ImagesRouter) Get(w http.ResponseWriter, req *http.Request) {
	documentID := chi.URLParam(req, "document_id")
	page, err := strconv.Atoi(chi.URLParam(req, "page"))
	if err != nil || page < 1 {
		middleware.WriteError(w, req,
			middleware.NewAPIError(http.StatusBadRequest, "page must be a positive integer", err), r.logger)
		return
	}

	image, err := r.client.Documents.OpenImage(req.Context(), documentID, page)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	defer image.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, image); err != nil {
		r.logger.Warn("image stream interrupted",
			slog.String("document_id", documentID),
			slog.Int("page", page),
			slog.String("error", err.Error()))
	}
}
