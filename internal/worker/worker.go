package worker

import (
	"context"
	"log"
	"time"

	"github.com/mathtoons/mathtoons/internal/db"
	"github.com/mathtoons/mathtoons/internal/models"
	"github.com/mathtoons/mathtoons/internal/pipeline"
	"github.com/mathtoons/mathtoons/internal/queue"
	"github.com/mathtoons/mathtoons/internal/taskstore"
)

const dequeueTimeout = 5 * time.Second

// Worker pulls generation jobs off the queue and runs the pipeline for
// each. Several workers share one Pipeline; the pipeline's render gate is
// what actually bounds resource use, not the worker count.
type Worker struct {
	id       int
	queue    *queue.Queue
	store    *taskstore.Store
	pipeline *pipeline.Pipeline
	archive  *db.DB // optional, nil when no database is configured
}

func New(id int, q *queue.Queue, store *taskstore.Store, p *pipeline.Pipeline, archive *db.DB) *Worker {
	return &Worker{id: id, queue: q, store: store, pipeline: p, archive: archive}
}

// Run is the dequeue loop. It exits when ctx is cancelled; a job already in
// flight runs to completion because its status was promised to the client.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[Worker %d] Started", w.id)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Worker %d] Stopping", w.id)
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[Worker %d] Stopping", w.id)
				return
			}
			log.Printf("[Worker %d] Dequeue error: %v", w.id, err)
			time.Sleep(2 * time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.handleJob(job)
	}
}

// handleJob runs one task start to finish. The job context is detached from
// the worker's run context so shutdown does not abandon a half-rendered
// video mid-flight.
func (w *Worker) handleJob(job *queue.Job) {
	ctx := context.Background()

	log.Printf("[Worker %d] Processing task %s (topic: %q)", w.id, job.TaskID, job.Request.Topic)

	w.setStatus(ctx, job.TaskID, models.StatusPayload{
		Status:  models.TaskStatusInProgress,
		Message: "Video generation started...",
	}, taskstore.NonTerminalTTL)

	url, err := w.pipeline.Run(ctx, job.TaskID, job.Request)
	if err != nil {
		log.Printf("[Worker %d] Task %s failed: %v", w.id, job.TaskID, err)
		w.setStatus(ctx, job.TaskID, models.StatusPayload{
			Status:  models.TaskStatusFailed,
			Message: err.Error(),
		}, taskstore.NonTerminalTTL)
		return
	}

	log.Printf("[Worker %d] Task %s complete: %s", w.id, job.TaskID, url)
	w.setStatus(ctx, job.TaskID, models.StatusPayload{
		Status:  models.TaskStatusComplete,
		Message: "Video is ready.",
		URL:     url,
	}, taskstore.CompleteTTL)
}

// setStatus writes the payload to the status store and mirrors it into the
// archive when one is configured. The archive write is best effort — the
// status store is what clients poll.
func (w *Worker) setStatus(ctx context.Context, taskID string, payload models.StatusPayload, ttl time.Duration) {
	w.store.Set(ctx, taskID, payload, ttl)

	if w.archive == nil {
		return
	}

	var url, errorText *string
	if payload.URL != "" {
		url = &payload.URL
	}
	if payload.Status == models.TaskStatusFailed && payload.Message != "" {
		errorText = &payload.Message
	}

	if err := w.archive.UpdateTaskStatus(ctx, taskID, payload.Status, url, errorText); err != nil {
		log.Printf("[Worker %d] WARNING: archive update failed for task %s: %v", w.id, taskID, err)
	}
}
