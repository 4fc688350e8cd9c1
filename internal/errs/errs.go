// Package errs defines the typed errors shared across the indexing pipeline.
// Components return one of these; callers branch with errors.As / errors.Is.
package errs

import "fmt"

// InvalidFormatError reports a file that is not a valid PDF (wrong extension
// or missing magic bytes). Never triggers compensation.
type InvalidFormatError struct {
	Filename string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid file format (expected PDF): %s", e.Filename)
}

// ReadError reports a local file that could not be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read PDF file: %s", e.Path)
}

func (e *ReadError) Unwrap() error { return e.Err }

// APIError reports a failure of the external parse service. StatusCode is
// zero when no HTTP response was received; State carries the terminal job
// state when the job itself failed.
type APIError struct {
	Message    string
	StatusCode int
	State      string
	Err        error
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error { return e.Err }

// EmbeddingError reports a failure of the embedding provider. Retries carries
// the attempt count when rate-limit retries were exhausted.
type EmbeddingError struct {
	Message string
	Retries int
	Err     error
}

func (e *EmbeddingError) Error() string { return e.Message }

func (e *EmbeddingError) Unwrap() error { return e.Err }

// DuplicateError reports a uniqueness conflict on book title.
type DuplicateError struct {
	Title string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("book already exists with title: %s", e.Title)
}

// NotFoundError reports a missing book record.
type NotFoundError struct {
	BookID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("book not found: %s", e.BookID)
}

// IndexingError wraps any failure of the indexing pipeline after the input
// was accepted. The orchestrator runs compensation before returning it.
type IndexingError struct {
	Message string
	Err     error
}

func (e *IndexingError) Error() string { return e.Message }

func (e *IndexingError) Unwrap() error { return e.Err }
