package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/pipeline"
	"github.com/munifact/munifact/internal/store"
)

// ErrShuttingDown is returned by Enqueue once Shutdown has begun.
var ErrShuttingDown = errors.New("queue is shutting down")

// PipelineQueue is a supervised worker pool running orchestrator jobs. Errors
// returned by Run itself (store failures, contract violations) are captured
// and written back to the document rather than dropped.
type PipelineQueue struct {
	orch    *pipeline.Orchestrator
	store   store.Store
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*PipelineQueue)

func WithWorkers(n int) Option {
	return func(q *PipelineQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *PipelineQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *PipelineQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewPipelineQueue(orch *pipeline.Orchestrator, st store.Store, logger *slog.Logger, opts ...Option) *PipelineQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &PipelineQueue{
		orch:    orch,
		store:   st,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *PipelineQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.orch.Run(ctx, job.DocumentID)
					cancel()

					if err != nil {
						q.logger.Error("processing failed",
							"worker_id", workerID, "document_id", job.DocumentID,
							"trace_id", job.TraceID, "error", err)
						q.markFailed(job.DocumentID, err)
					} else {
						q.logger.Info("processed document",
							"worker_id", workerID, "document_id", job.DocumentID, "trace_id", job.TraceID)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// markFailed records a run-level failure on the document, unless the run
// already reached a terminal state before erroring.
func (q *PipelineQueue) markFailed(documentID int64, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := q.store.GetDocument(ctx, documentID)
	if err != nil {
		q.logger.Error("cannot load document after failed run", "document_id", documentID, "error", err)
		return
	}
	if doc.Status.Terminal() {
		return
	}

	now := time.Now().UTC()
	errored := constants.DocError
	msg := fmt.Sprintf("internal processing error: %v", runErr)
	if _, err := q.store.UpdateDocument(ctx, documentID, store.DocumentUpdate{
		Status:       &errored,
		CompletedAt:  &now,
		ErrorMessage: &msg,
	}); err != nil {
		q.logger.Error("cannot mark document failed", "document_id", documentID, "error", err)
	}
}

func (q *PipelineQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "document_id", job.DocumentID)
		return ErrShuttingDown
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "document_id", job.DocumentID, "trace_id", job.TraceID)
	default:
		q.logger.Warn("queue full, applying backpressure", "document_id", job.DocumentID)
		q.ch <- job
	}
	return nil
}

func (q *PipelineQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
