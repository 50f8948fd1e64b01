package statusstore

import "time"

// Status is the lifecycle state of a document in the pipeline.
type Status string

const (
	// StatusQueued means the document has been claimed and dispatched but
	// no worker has started on it yet.
	StatusQueued Status = "queued"

	// StatusProcessing means a worker stage currently owns the document.
	StatusProcessing Status = "processing"

	// StatusProcessed means the embed stage persisted the vectors. Terminal.
	StatusProcessed Status = "processed"

	// StatusError means a stage failed the document. Terminal until an
	// operator requeues it.
	StatusError Status = "error"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusProcessed, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends an attempt.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

// Record is one row of the documents table.
type Record struct {
	ID            int64
	Filename      string
	Filepath      string
	Status        Status
	TraceID       string
	ErrorMessage  *string
	CreatedDate   time.Time
	ProcessedDate time.Time
}

// Stats summarizes the documents table by status.
type Stats struct {
	Total    int
	ByStatus map[Status]int
}
