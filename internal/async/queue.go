package async

import (
	"context"
	"time"
)

// Job is one scheduled pipeline run.
type Job struct {
	DocumentID  int64
	SubmittedAt time.Time
	TraceID     string
}

// Queue schedules pipeline runs without blocking the caller. Implementations
// must never silently drop a job: a job that cannot be scheduled or that
// fails outside the pipeline's own error handling is reflected back onto the
// document as an error status.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
