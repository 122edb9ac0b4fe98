package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mathtoons/mathtoons/internal/db"
	"github.com/mathtoons/mathtoons/internal/models"
	"github.com/mathtoons/mathtoons/internal/taskstore"
)

// Enqueuer schedules generation jobs for workers and reports how many are
// waiting.
type Enqueuer interface {
	EnqueueGenerateVideo(ctx context.Context, taskID string, req models.GenerationRequest) error
	Length(ctx context.Context) (int64, error)
}

type Handler struct {
	store   *taskstore.Store
	queue   Enqueuer
	archive *db.DB // optional, nil when no database is configured
}

func NewHandler(store *taskstore.Store, q Enqueuer, archive *db.DB) *Handler {
	return &Handler{store: store, queue: q, archive: archive}
}

// SubmitGeneration handles POST /v1/generate-video. It validates the
// request, records ACCEPTED in the status store, enqueues the job, and
// returns 202. The ACCEPTED write happens before the response so a client
// polling immediately never sees an unknown task.
func (h *Handler) SubmitGeneration(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID := uuid.New().String()

	h.store.Set(r.Context(), taskID, models.StatusPayload{
		Status:  models.TaskStatusAccepted,
		Message: "Task accepted.",
	}, taskstore.NonTerminalTTL)

	if h.archive != nil {
		rec := &models.TaskRecord{
			TaskID:      taskID,
			StudentName: req.StudentName,
			Topic:       req.Topic,
			Lang:        req.Lang,
			Status:      models.TaskStatusAccepted,
		}
		if err := h.archive.CreateTask(r.Context(), rec); err != nil {
			log.Printf("[API] WARNING: archive insert failed for task %s: %v", taskID, err)
		}
	}

	if err := h.queue.EnqueueGenerateVideo(r.Context(), taskID, req); err != nil {
		log.Printf("[API] Failed to enqueue task %s: %v", taskID, err)
		h.store.Set(r.Context(), taskID, models.StatusPayload{
			Status:  models.TaskStatusFailed,
			Message: "Failed to schedule the task.",
		}, taskstore.NonTerminalTTL)
		respondError(w, http.StatusInternalServerError, "Failed to schedule the task")
		return
	}

	respondJSON(w, http.StatusAccepted, models.SubmitResponse{
		Message: "Task accepted.",
		TaskID:  taskID,
		Details: req,
	})
}

// GetTaskStatus handles GET /v1/task-status/{taskID}. COMPLETE responses
// are normalized to {status, url} only; every other status is returned as
// stored. Unknown or expired tasks are a 404.
func (h *Handler) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	payload, ok := h.store.Get(r.Context(), taskID)
	if !ok {
		respondError(w, http.StatusNotFound, "Task not found")
		return
	}

	if payload.Status == models.TaskStatusComplete {
		respondJSON(w, http.StatusOK, map[string]string{
			"status": string(payload.Status),
			"url":    payload.URL,
		})
		return
	}

	respondJSON(w, http.StatusOK, payload)
}

// ListVideos handles GET /v1/videos: recently completed generations from
// the task archive, newest first. Requires the database.
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		respondError(w, http.StatusServiceUnavailable, "History is not available: no database configured")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	tasks, err := h.archive.ListCompletedTasks(r.Context(), limit)
	if err != nil {
		log.Printf("[API] Failed to list videos: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list videos")
		return
	}

	total, err := h.archive.CountTasks(r.Context())
	if err != nil {
		log.Printf("[API] Failed to count tasks: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list videos")
		return
	}

	respondJSON(w, http.StatusOK, models.ListTasksResponse{Tasks: tasks, Total: total})
}

// GetVideo handles GET /v1/videos/{taskID}: one archived generation record.
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		respondError(w, http.StatusServiceUnavailable, "History is not available: no database configured")
		return
	}

	rec, err := h.archive.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		if errors.Is(err, db.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "Task not found")
			return
		}
		log.Printf("[API] Failed to get task: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to get task")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// Health check. Queue depth is included when the queue is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if depth, err := h.queue.Length(r.Context()); err == nil {
		resp["queue_depth"] = depth
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
