package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/mathtoons/mathtoons/internal/models"
)

func newMemoryStore() *Store {
	return New("")
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newMemoryStore()
	ctx := context.Background()

	payload := models.StatusPayload{
		Status:  models.TaskStatusAccepted,
		Message: "Task accepted.",
	}
	s.Set(ctx, "task-1", payload, NonTerminalTTL)

	got, ok := s.Get(ctx, "task-1")
	if !ok {
		t.Fatal("expected task-1 to be found")
	}
	if got.Status != models.TaskStatusAccepted || got.Message != "Task accepted." {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestGetUnknownTask(t *testing.T) {
	s := newMemoryStore()

	if _, ok := s.Get(context.Background(), "nope"); ok {
		t.Error("expected unknown task to be not found")
	}
}

func TestSetOverwritesPriorPayload(t *testing.T) {
	s := newMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "task-1", models.StatusPayload{Status: models.TaskStatusInProgress, Message: "Video generation started..."}, NonTerminalTTL)
	s.Set(ctx, "task-1", models.StatusPayload{Status: models.TaskStatusComplete, URL: "https://cdn.example.com/rohan/task-1.mp4"}, CompleteTTL)

	got, ok := s.Get(ctx, "task-1")
	if !ok {
		t.Fatal("expected task-1 to be found")
	}
	if got.Status != models.TaskStatusComplete {
		t.Errorf("expected COMPLETE, got %s", got.Status)
	}
	if got.URL == "" {
		t.Error("expected URL on COMPLETE payload")
	}
}

func TestRepeatedReadsAreIdentical(t *testing.T) {
	s := newMemoryStore()
	ctx := context.Background()

	want := models.StatusPayload{Status: models.TaskStatusComplete, URL: "https://cdn.example.com/a/b.mp4"}
	s.Set(ctx, "task-1", want, CompleteTTL)

	for i := 0; i < 5; i++ {
		got, ok := s.Get(ctx, "task-1")
		if !ok {
			t.Fatalf("read %d: task missing", i)
		}
		if got != want {
			t.Fatalf("read %d: payload changed: %+v", i, got)
		}
	}
}

func TestExpiredEntryIsReclaimed(t *testing.T) {
	s := newMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "task-1", models.StatusPayload{Status: models.TaskStatusAccepted}, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := s.Get(ctx, "task-1"); ok {
		t.Error("expected expired entry to be gone")
	}
}

func TestConcurrentWritesToDifferentKeys(t *testing.T) {
	s := newMemoryStore()
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(id byte) {
			key := "task-" + string('a'+id)
			s.Set(ctx, key, models.StatusPayload{Status: models.TaskStatusInProgress, Message: key}, NonTerminalTTL)
			done <- struct{}{}
		}(byte(i))
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	for i := 0; i < 8; i++ {
		key := "task-" + string('a'+byte(i))
		got, ok := s.Get(ctx, key)
		if !ok || got.Message != key {
			t.Errorf("key %s corrupted or missing: %+v", key, got)
		}
	}
}
