// Package task provides the persisted ingest task: the queryable
// pending/running/succeeded/failed record behind every background add or
// update, replacing fire-and-forget processing.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Operation identifies what an ingest task does.
type Operation string

// Operation values.
const (
	OperationAdd    Operation = "add"
	OperationUpdate Operation = "update"
)

// State represents the lifecycle of an ingest task.
type State string

// State values.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Task is one background ingest unit: parse an uploaded PDF and index it
// under a document id. Callers poll it by id instead of inferring
// completion from a later get.
type Task struct {
	id            string
	operation     Operation
	documentID    string
	filename      string
	inputPath     string
	state         State
	errorMessage  string
	pageCount     int
	imagesDeleted int
	createdAt     time.Time
	updatedAt     time.Time
}

// New creates a pending Task for the given operation.
func New(operation Operation, documentID, filename, inputPath string) Task {
	now := time.Now().UTC()
	return Task{
		id:         uuid.NewString(),
		operation:  operation,
		documentID: documentID,
		filename:   filename,
		inputPath:  inputPath,
		state:      StatePending,
		createdAt:  now,
		updatedAt:  now,
	}
}

// NewWithID creates a Task with all fields (used by the store).
func NewWithID(
	id string,
	operation Operation,
	documentID, filename, inputPath string,
	state State,
	errorMessage string,
	pageCount, imagesDeleted int,
	createdAt, updatedAt time.Time,
) Task {
	return Task{
		id:            id,
		operation:     operation,
		documentID:    documentID,
		filename:      filename,
		inputPath:     inputPath,
		state:         state,
		errorMessage:  errorMessage,
		pageCount:     pageCount,
		imagesDeleted: imagesDeleted,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// ID returns the task id.
func (t Task) ID() string { return t.id }

// Operation returns the task operation.
func (t Task) Operation() Operation { return t.operation }

// DocumentID returns the target document id.
func (t Task) DocumentID() string { return t.documentID }

// Filename returns the uploaded filename.
func (t Task) Filename() string { return t.filename }

// InputPath returns the temporary file holding the uploaded PDF. The
// worker removes it on every exit path, success or failure.
func (t Task) InputPath() string { return t.inputPath }

// State returns the current task state.
func (t Task) State() State { return t.state }

// ErrorMessage returns the failure message for failed tasks.
func (t Task) ErrorMessage() string { return t.errorMessage }

// PageCount returns the indexed page count once the task succeeded.
func (t Task) PageCount() int { return t.pageCount }

// ImagesDeleted returns how many old images an update removed.
func (t Task) ImagesDeleted() int { return t.imagesDeleted }

// CreatedAt returns when the task was enqueued.
func (t Task) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns when the task last changed state.
func (t Task) UpdatedAt() time.Time { return t.updatedAt }

// Running returns a copy in the running state.
func (t Task) Running() Task {
	t.state = StateRunning
	t.updatedAt = time.Now().UTC()
	return t
}

// Succeeded returns a copy marked succeeded with its result counts.
func (t Task) Succeeded(pageCount, imagesDeleted int) Task {
	t.state = StateSucceeded
	t.pageCount = pageCount
	t.imagesDeleted = imagesDeleted
	t.updatedAt = time.Now().UTC()
	return t
}

// Failed returns a copy marked failed with the given message.
func (t Task) Failed(message string) Task {
	t.state = StateFailed
	t.errorMessage = message
	t.updatedAt = time.Now().UTC()
	return t
}
