// Package dto defines the JSON request and response shapes of the v1 API.
package dto

import "time"

// TaskResponse reports an accepted or queried ingest task.
type TaskResponse struct {
	TaskID        string    `json:"task_id"`
	Operation     string    `json:"operation"`
	DocumentID    string    `json:"document_id"`
	Filename      string    `json:"filename"`
	State         string    `json:"state"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	PageCount     int       `json:"page_count,omitempty"`
	ImagesDeleted int       `json:"images_deleted,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DocumentSummary is one row of the document listing.
type DocumentSummary struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	PageCount  int    `json:"page_count"`
}

// DocumentListResponse lists all indexed documents.
type DocumentListResponse struct {
	Documents []DocumentSummary `json:"documents"`
	Total     int               `json:"total"`
}

// PageDetail is one page in the document detail view.
type PageDetail struct {
	PageNumber int    `json:"page_number"`
	Preview    string `json:"preview"`
	ImageRef   string `json:"image_ref"`
}

// DocumentDetailResponse is the full view of one document.
type DocumentDetailResponse struct {
	DocumentID  string       `json:"document_id"`
	Filename    string       `json:"filename"`
	FragmentIDs []string     `json:"fragment_ids"`
	Pages       []PageDetail `json:"pages"`
}

// DeleteResponse reports a completed delete.
type DeleteResponse struct {
	DocumentID    string    `json:"document_id"`
	ImagesDeleted int       `json:"images_deleted"`
	DeletedAt     time.Time `json:"deleted_at"`
}
