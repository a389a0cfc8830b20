// Package ingest runs the background job that embeds imported products.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/kopi/internal/storage"
)

// JobTypeProductEmbed is the job type that embeds one catalogue entry.
const JobTypeProductEmbed = "product_embed"

// JobStore abstracts the job queue and catalogue lookups.
type JobStore interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	GetProduct(ctx context.Context, id string) (storage.Product, error)
}

// ProductIndexer embeds a product and stores its vector. *retrieval.Indexer
// satisfies it.
type ProductIndexer interface {
	Index(ctx context.Context, p storage.Product) (string, error)
}

type embedPayload struct {
	ProductID string `json:"product_id"`
}

// EnqueueProductEmbed schedules a product for embedding.
func EnqueueProductEmbed(ctx context.Context, store JobStore, productID string) error {
	payload, err := json.Marshal(embedPayload{ProductID: productID})
	if err != nil {
		return err
	}
	return store.EnqueueJob(ctx, storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeProductEmbed,
		PayloadJSON: string(payload),
	})
}

// Worker processes product_embed jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	indexer ProductIndexer
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, indexer ProductIndexer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		indexer: indexer,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. It reports whether a job was
// claimed, whether or not it succeeded.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobTypeProductEmbed})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	p, err := w.store.GetProduct(ctx, payload.ProductID)
	if err != nil {
		return fmt.Errorf("loading product %s: %w", payload.ProductID, err)
	}

	vectorID, err := w.indexer.Index(ctx, p)
	if err != nil {
		return err
	}
	w.logger.Debug("product embedded", "product_id", p.ID, "vector_id", vectorID)
	return nil
}
