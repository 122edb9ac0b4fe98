package models

import (
	"fmt"
	"time"
)

// Enums
type TaskStatus string

const (
	TaskStatusAccepted   TaskStatus = "ACCEPTED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusComplete   TaskStatus = "COMPLETE"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether a task in this status can still transition.
// COMPLETE and FAILED are final; the worker never overwrites them.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusComplete || s == TaskStatusFailed
}

// SupportedLanguages are the language codes accepted in a generation request.
// Hindi and Marathi narration is produced in Devanagari script by the
// storyboard prompt.
var SupportedLanguages = map[string]bool{
	"en": true,
	"hi": true,
	"mr": true,
}

// GenerationRequest is the personalization request submitted by a client.
// Immutable once accepted.
type GenerationRequest struct {
	StudentName     string   `json:"student_name"`
	Topic           string   `json:"topic"`
	Artifacts       []string `json:"artifacts"`
	CharacterPreset string   `json:"character_preset"`
	Lang            string   `json:"lang"` // "en", "hi", or "mr"
}

// Validate checks the minimum required fields on a generation request.
func (r *GenerationRequest) Validate() error {
	if r.StudentName == "" {
		return fmt.Errorf("student_name is required")
	}
	if r.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if r.CharacterPreset == "" {
		return fmt.Errorf("character_preset is required")
	}
	if !SupportedLanguages[r.Lang] {
		return fmt.Errorf("unsupported lang %q (allowed: en, hi, mr)", r.Lang)
	}
	return nil
}

// Scene is one entry of a storyboard: visual render instructions plus
// narration text in the target language.
type Scene struct {
	SceneNumber      int    `json:"scene_number"`
	SceneDescription string `json:"scene_description"`
	Narration        string `json:"narration"`
}

// Storyboard is the ordered scene list produced by the LLM stage.
// Scene numbers increase densely from 1; size is constrained to [15, 30]
// by the storyboard prompt, not re-validated downstream.
type Storyboard struct {
	Scenes []Scene `json:"storyboard"`
}

// SceneAsset is the product of processing one scene: the rendered video
// and the synthesized narration audio.
type SceneAsset struct {
	SceneNumber int
	VideoPath   string
	AudioPath   string
}

// StatusPayload is the value written to the task status store for each
// task_id. URL is present only for COMPLETE.
type StatusPayload struct {
	Status  TaskStatus `json:"status"`
	Message string     `json:"message,omitempty"`
	URL     string     `json:"url,omitempty"`
}

// TaskRecord is a row of the optional Postgres task archive.
type TaskRecord struct {
	TaskID      string     `json:"task_id"`
	StudentName string     `json:"student_name"`
	Topic       string     `json:"topic"`
	Lang        string     `json:"lang"`
	Status      TaskStatus `json:"status"`
	URL         *string    `json:"url,omitempty"`
	ErrorText   *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DTOs for API responses

type SubmitResponse struct {
	Message string            `json:"message"`
	TaskID  string            `json:"task_id"`
	Details GenerationRequest `json:"details"`
}

type ListTasksResponse struct {
	Tasks []TaskRecord `json:"tasks"`
	Total int          `json:"total"`
}
