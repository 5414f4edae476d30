package service

import "errors"

// ErrValidation indicates a request failed validation before any mutation
// or external call happened.
var ErrValidation = errors.New("validation failed")

// ErrTaskNotFound indicates an unknown ingest task id.
var ErrTaskNotFound = errors.New("task not found")
