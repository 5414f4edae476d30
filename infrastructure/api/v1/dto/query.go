package dto

// QueryRequest is a question over the indexed documents.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// Source is one retrieved fragment backing an answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	PageNumber int     `json:"page_number"`
	ImageRef   string  `json:"image_ref"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview"`
}

// QueryResponse is the generated answer with its provenance.
type QueryResponse struct {
	Answer           string   `json:"answer"`
	Sources          []Source `json:"sources"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
}

// HealthResponse reports service health, index size and queue depth.
type HealthResponse struct {
	Status       string `json:"status"`
	Documents    int    `json:"documents"`
	PendingTasks int64  `json:"pending_tasks"`
}
