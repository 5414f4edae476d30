package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmag/ragmag"
	"github.com/ragmag/ragmag/infrastructure/api/v1/dto"
	"github.com/ragmag/ragmag/infrastructure/parser"
	"github.com/ragmag/ragmag/infrastructure/provider"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, []provider.Message) (string, error) {
	return "stub answer", nil
}

type stubParser struct{}

func (stubParser) Parse(context.Context, string) ([]parser.Page, error) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for x := 0; x < 20; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{B: uint8(x * 12), A: 255})
		}
	}
	return []parser.Page{
		{Number: 1, Text: "first page", Image: img},
		{Number: 2, Text: "second page", Image: img},
	}, nil
}

type testAPI struct {
	client *ragmag.Client
	router chi.Router
}

func newTestAPI(t *testing.T, maxUploadBytes int64) *testAPI {
	t.Helper()
	client, err := ragmag.New(
		ragmag.WithDataDir(t.TempDir()),
		ragmag.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		ragmag.WithEmbedder(stubEmbedder{}),
		ragmag.WithTextGenerator(stubGenerator{}),
		ragmag.WithParser(stubParser{}),
		ragmag.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	router := chi.NewRouter()
	router.Mount("/api/v1/documents", NewDocumentsRouter(client, maxUploadBytes).Routes())
	router.Mount("/api/v1/query", NewQueryRouter(client).Routes())
	router.Mount("/api/v1/tasks", NewTasksRouter(client).Routes())
	router.Mount("/api/v1/images", NewImagesRouter(client).Routes())
	router.Get("/health", HealthHandler(client))

	return &testAPI{client: client, router: router}
}

func (a *testAPI) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, method, url, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// waitSucceeded polls the tasks endpoint until the task is terminal.
func (a *testAPI) waitSucceeded(t *testing.T, taskID string) dto.TaskResponse {
	t.Helper()
	var last dto.TaskResponse
	require.Eventually(t, func() bool {
		rec := a.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+taskID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		last = decodeBody[dto.TaskResponse](t, rec)
		return last.State == "succeeded" || last.State == "failed"
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "succeeded", last.State, "task error: %s", last.ErrorMessage)
	return last
}

func TestDocumentLifecycle(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	// Upload is accepted asynchronously.
	rec := api.do(t, uploadRequest(t, http.MethodPost, "/api/v1/documents", "manual.pdf", []byte("%PDF-1.7")))
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decodeBody[dto.TaskResponse](t, rec)
	assert.Equal(t, "pending", accepted.State)
	assert.Equal(t, "add", accepted.Operation)
	require.NotEmpty(t, accepted.TaskID)
	require.NotEmpty(t, accepted.DocumentID)

	done := api.waitSucceeded(t, accepted.TaskID)
	assert.Equal(t, 2, done.PageCount)

	// Listing shows the document.
	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[dto.DocumentListResponse](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "manual.pdf", list.Documents[0].Filename)

	// Detail view with page previews and image refs.
	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+accepted.DocumentID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[dto.DocumentDetailResponse](t, rec)
	require.Len(t, detail.Pages, 2)
	assert.Equal(t, "first page", detail.Pages[0].Preview)
	assert.NotEmpty(t, detail.Pages[0].ImageRef)

	// Page image streams as JPEG.
	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/images/"+accepted.DocumentID+"/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	// Replace keeps the id.
	rec = api.do(t, uploadRequest(t, http.MethodPut, "/api/v1/documents/"+accepted.DocumentID, "v2.pdf", []byte("%PDF-1.7")))
	require.Equal(t, http.StatusAccepted, rec.Code)
	updated := decodeBody[dto.TaskResponse](t, rec)
	assert.Equal(t, "update", updated.Operation)
	assert.Equal(t, accepted.DocumentID, updated.DocumentID)
	api.waitSucceeded(t, updated.TaskID)

	// The ingest history shows both operations.
	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+accepted.DocumentID+"/tasks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]dto.TaskResponse](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, "update", history[0].Operation)

	// Delete reports image cleanup.
	rec = api.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+accepted.DocumentID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeBody[dto.DeleteResponse](t, rec)
	assert.Equal(t, 2, deleted.ImagesDeleted)
	assert.False(t, deleted.DeletedAt.IsZero())

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+accepted.DocumentID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	rec := api.do(t, uploadRequest(t, http.MethodPost, "/api/v1/documents", "notes.txt", []byte("plain text")))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadRejectsMissingFileField(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "manual"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := api.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsOversizeBody(t *testing.T) {
	api := newTestAPI(t, 64)

	rec := api.do(t, uploadRequest(t, http.MethodPost, "/api/v1/documents", "big.pdf", bytes.Repeat([]byte("x"), 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUpdateUnknownDocument(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	rec := api.do(t, uploadRequest(t, http.MethodPut, "/api/v1/documents/no-such-doc", "a.pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryEndpoint(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	// Index something to retrieve.
	rec := api.do(t, uploadRequest(t, http.MethodPost, "/api/v1/documents", "manual.pdf", []byte("%PDF")))
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decodeBody[dto.TaskResponse](t, rec)
	api.waitSucceeded(t, accepted.TaskID)

	body, err := json.Marshal(dto.QueryRequest{Question: "what is on the first page?"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec = api.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	answer := decodeBody[dto.QueryResponse](t, rec)
	assert.Equal(t, "stub answer", answer.Answer)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, accepted.DocumentID, answer.Sources[0].DocumentID)
}

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte(`{"question":""}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := api.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskNotFound(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/no-such-task", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImageNotFound(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/images/no-such-doc/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[dto.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Zero(t, health.Documents)
	assert.Zero(t, health.PendingTasks)
}
