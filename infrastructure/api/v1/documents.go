// Package v1 provides the v1 API routes.
package v1

import (
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ragmag/ragmag"
	"github.com/ragmag/ragmag/domain/document"
	"github.com/ragmag/ragmag/domain/task"
	"github.com/ragmag/ragmag/infrastructure/api/middleware"
	"github.com/ragmag/ragmag/infrastructure/api/v1/dto"
)

// multipartMemoryLimit bounds how much of a parsed upload is held in
// memory before spilling to disk.
const multipartMemoryLimit = 32 << 20

// DocumentsRouter handles document lifecycle endpoints.
type DocumentsRouter struct {
	client         *ragmag.Client
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewDocumentsRouter creates a new DocumentsRouter. maxUploadBytes
// bounds accepted upload sizes; zero or negative disables the bound.
func NewDocumentsRouter(client *ragmag.Client, maxUploadBytes int64) *DocumentsRouter {
	return &DocumentsRouter{
		client:         client,
		maxUploadBytes: maxUploadBytes,
		logger:         client.Logger(),
	}
}

// Routes returns the chi router for document endpoints.
func (r *DocumentsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Post("/", r.Add)
	router.Get("/{id}", r.Get)
	router.Put("/{id}", r.Update)
	router.Delete("/{id}", r.Delete)
	router.Get("/{id}/tasks", r.Tasks)

	return router
}

// Add handles POST /api/v1/documents. The upload is spooled and indexed
// in the background; the response is the pending task, immediately
// queryable under /api/v1/tasks/{task_id}.
func (r *DocumentsRouter) Add(w http.ResponseWriter, req *http.Request) {
	filename, file, err := r.readUpload(w, req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	defer file.Close()

	enqueued, err := r.client.Ingest.EnqueueAdd(req.Context(), document.NewID(), filename, file)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, taskToDTO(enqueued))
}

// Update handles PUT /api/v1/documents/{id}. Unknown ids are rejected
// before the upload is accepted; the replacement itself runs in the
// background and keeps the old content until the swap completes.
func (r *DocumentsRouter) Update(w http.ResponseWriter, req *http.Request) {
	documentID := chi.URLParam(req, "id")
	if _, err := r.client.Documents.Get(req.Context(), documentID); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	filename, file, err := r.readUpload(w, req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	defer file.Close()

	enqueued, err := r.client.Ingest.EnqueueUpdate(req.Context(), documentID, filename, file)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, taskToDTO(enqueued))
}

// List handles GET /api/v1/documents.
func (r *DocumentsRouter) List(w http.ResponseWriter, req *http.Request) {
	summaries, err := r.client.Documents.List(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	docs := make([]dto.DocumentSummary, len(summaries))
	for i, s := range summaries {
		docs[i] = dto.DocumentSummary{
			DocumentID: s.DocumentID,
			Filename:   s.Filename,
			PageCount:  s.PageCount,
		}
	}
	middleware.WriteJSON(w, http.StatusOK, dto.DocumentListResponse{
		Documents: docs,
		Total:     len(docs),
	})
}

// Get handles GET /api/v1/documents/{id}.
func (r *DocumentsRouter) Get(w http.ResponseWriter, req *http.Request) {
	detail, err := r.client.Documents.Get(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	pages := make([]dto.PageDetail, len(detail.Pages))
	for i, p := range detail.Pages {
		pages[i] = dto.PageDetail{
			PageNumber: p.PageNumber,
			Preview:    p.Preview,
			ImageRef:   p.ImageRef,
		}
	}
	middleware.WriteJSON(w, http.StatusOK, dto.DocumentDetailResponse{
		DocumentID:  detail.DocumentID,
		Filename:    detail.Filename,
		FragmentIDs: detail.FragmentIDs,
		Pages:       pages,
	})
}

// Delete handles DELETE /api/v1/documents/{id}.
func (r *DocumentsRouter) Delete(w http.ResponseWriter, req *http.Request) {
	documentID := chi.URLParam(req, "id")
	result, err := r.client.Documents.Delete(req.Context(), documentID)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.DeleteResponse{
		DocumentID:    documentID,
		ImagesDeleted: result.ImagesDeleted,
		DeletedAt:     time.Now().UTC(),
	})
}

// Tasks handles GET /api/v1/documents/{id}/tasks: the document's ingest
// history, newest first.
func (r *DocumentsRouter) Tasks(w http.ResponseWriter, req *http.Request) {
	tasks, err := r.client.Ingest.TasksForDocument(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	out := make([]dto.TaskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = taskToDTO(t)
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// readUpload extracts the PDF file from a multipart request, enforcing
// the size bound and content type.
func (r *DocumentsRouter) readUpload(w http.ResponseWriter, req *http.Request) (string, multipart.File, error) {
	if r.maxUploadBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, r.maxUploadBytes)
	}

	if err := req.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return "", nil, err
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		return "", nil, middleware.NewAPIError(http.StatusBadRequest, "multipart field 'file' is required", err)
	}

	if !isPDF(header) {
		_ = file.Close()
		return "", nil, middleware.NewAPIError(http.StatusUnsupportedMediaType, "only PDF uploads are accepted", nil)
	}
	return header.Filename, file, nil
}

// isPDF accepts a .pdf extension or an application/pdf content type.
func isPDF(header *multipart.FileHeader) bool {
	if strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		return true
	}
	return strings.EqualFold(header.Header.Get("Content-Type"), "application/pdf")
}

// taskToDTO maps a task to its response shape.
func taskToDTO(t task.Task) dto.TaskResponse {
	return dto.TaskResponse{
		TaskID:        t.ID(),
		Operation:     string(t.Operation()),
		DocumentID:    t.DocumentID(),
		Filename:      t.Filename(),
		State:         string(t.State()),
		ErrorMessage:  t.ErrorMessage(),
		PageCount:     t.PageCount(),
		ImagesDeleted: t.ImagesDeleted(),
		CreatedAt:     t.CreatedAt(),
		UpdatedAt:     t.UpdatedAt(),
	}
}
