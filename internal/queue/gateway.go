package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job is one pending or due unit of work in the gateway.
type Job struct {
	ID       string          `json:"id"`
	Payload  json.RawMessage `json:"payload"`
	DueAt    time.Time       `json:"due_at"`
	Attempts int             `json:"attempts"`
}

// Gateway is the thin abstraction over the delayed-job backend. Enqueue is
// idempotent on jobID: enqueuing a job whose id is already pending is a no-op,
// which is the sole mechanism preventing duplicate in-flight deliveries for
// the same subscriber/step pair.
type Gateway interface {
	Enqueue(ctx context.Context, jobID string, payload any, delay time.Duration) error
	ListPending(ctx context.Context, filter func(Job) bool) ([]Job, error)
	Cancel(ctx context.Context, jobID string) error
}
