// Package booking owns the booking task queue: immutable task requests, a
// priority-ordered submission queue and the single worker that serializes
// every remote-UI session.
package booking

import (
	"fmt"

	"github.com/google/uuid"
)

// Execution modes carried in Task metadata under KeyMode.
const (
	ModeRequestCode = "request_code"
	ModeComplete    = "complete"
)

// Metadata keys understood by the scenario engine.
const (
	KeyMode         = "mode"
	KeyPhone        = "phone"
	KeyCode         = "code"
	KeyDate         = "date"
	KeyInterval     = "interval"
	KeyDuration     = "duration"
	KeyRoom         = "room"
	KeyStudio       = "studio"
	KeyStorageState = "storage_state"
	KeyResumeURL    = "resume_url"
)

// Task is one requested booking or code-request attempt. It is immutable
// after creation; lower Priority values are served first.
type Task struct {
	ID          uuid.UUID
	LocationURL string
	Description string
	Priority    int
	Metadata    map[string]string
}

// NewTask builds a Task with a fresh ID and a private copy of the metadata.
func NewTask(locationURL, description string, priority int, metadata map[string]string) Task {
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return Task{
		ID:          uuid.New(),
		LocationURL: locationURL,
		Description: description,
		Priority:    priority,
		Metadata:    meta,
	}
}

// Meta returns the metadata value for key, or "" when absent.
func (t Task) Meta(key string) string {
	return t.Metadata[key]
}

// State is the terminal state of a processed Task.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Result is the terminal outcome of one Task, created exactly once by the
// worker and delivered exactly once to the waiting caller. Payload carries
// the session state between the two booking phases.
type Result struct {
	State      State
	Message    string
	PaymentURL string
	Payload    map[string]string
}

// Failed builds a failed Result with a formatted message.
func Failed(format string, args ...any) Result {
	return Result{State: StateFailed, Message: fmt.Sprintf(format, args...)}
}

// Completed builds a completed Result.
func Completed(message string) Result {
	return Result{State: StateCompleted, Message: message}
}
