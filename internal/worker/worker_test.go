package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mathtoons/mathtoons/internal/models"
	"github.com/mathtoons/mathtoons/internal/pipeline"
	"github.com/mathtoons/mathtoons/internal/queue"
	"github.com/mathtoons/mathtoons/internal/services"
	"github.com/mathtoons/mathtoons/internal/taskstore"
)

// scriptedLLM records the stored task status at the moment the pipeline
// first calls a collaborator, so tests can assert IN_PROGRESS was visible
// before any work started.
type scriptedLLM struct {
	mu        sync.Mutex
	store     *taskstore.Store
	taskID    string
	responses []string
	fail      bool

	called            bool
	statusAtFirstCall models.TaskStatus
}

func (l *scriptedLLM) GenerateText(ctx context.Context, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.called {
		l.called = true
		if p, ok := l.store.Get(ctx, l.taskID); ok {
			l.statusAtFirstCall = p.Status
		}
	}
	if l.fail {
		return "", fmt.Errorf("model unavailable")
	}
	if len(l.responses) == 0 {
		return "", fmt.Errorf("scriptedLLM: no response queued")
	}
	r := l.responses[0]
	l.responses = l.responses[1:]
	return r, nil
}

type stubRenderer struct{}

func (stubRenderer) ScriptKind() services.ScriptKind { return services.ScriptKindPython }

func (stubRenderer) RenderScene(ctx context.Context, scriptPath string, sceneNumber int, outputDir string) (string, error) {
	return fmt.Sprintf("%s/scene_%d.mp4", outputDir, sceneNumber), nil
}

type stubTTS struct{}

func (stubTTS) GenerateNarration(ctx context.Context, narration, character, lang, outputDir string) (string, error) {
	return outputDir + "/audio.mp3", nil
}

type stubMedia struct{}

func (stubMedia) CombineSceneAssets(ctx context.Context, videoPath, audioPath, outputDir string) (string, error) {
	return "combined_" + videoPath, nil
}

func (stubMedia) StitchFinalVideo(ctx context.Context, scenePaths []string, outputDir string, musicPaths []string) (string, error) {
	return outputDir + "/final_video.mp4", nil
}

type stubUploader struct{}

func (stubUploader) UploadFile(ctx context.Context, localPath, destinationKey, contentType string) (string, error) {
	return destinationKey, nil
}

const storyboardJSON = `{"storyboard": [
	{"scene_number": 1, "scene_description": "Dino waves hello", "narration": "Hi Asha... let's count!"},
	{"scene_number": 2, "scene_description": "Dino celebrates", "narration": "You did it... great job!"}
]}`

const masterScript = "```python\nfrom manim import *\nclass Scene1(Scene):\n    pass\n```"

func testJob() *queue.Job {
	return &queue.Job{
		TaskID: "task-1",
		Request: models.GenerationRequest{
			StudentName:     "Asha Patel",
			Topic:           "Counting to five",
			Artifacts:       []string{"mango"},
			CharacterPreset: "dino",
			Lang:            "en",
		},
	}
}

func newTestWorker(t *testing.T, llm *scriptedLLM) (*Worker, *taskstore.Store) {
	t.Helper()
	store := taskstore.New("") // memory-only
	t.Cleanup(func() { store.Close() })
	llm.store = store
	llm.taskID = "task-1"

	pipe := pipeline.New(pipeline.Config{
		LLM:           llm,
		Renderer:      stubRenderer{},
		TTS:           stubTTS{},
		Media:         stubMedia{},
		Uploader:      stubUploader{},
		WorkDir:       t.TempDir(),
		PublicURLBase: "https://cdn.example.com/videos",
	})

	return New(1, nil, store, pipe, nil), store
}

func TestHandleJobSuccess(t *testing.T) {
	llm := &scriptedLLM{responses: []string{storyboardJSON, masterScript}}
	w, store := newTestWorker(t, llm)

	w.handleJob(testJob())

	// IN_PROGRESS was visible in the store before the pipeline touched any
	// collaborator.
	if llm.statusAtFirstCall != models.TaskStatusInProgress {
		t.Errorf("status at first pipeline call = %q, want IN_PROGRESS", llm.statusAtFirstCall)
	}

	payload, ok := store.Get(context.Background(), "task-1")
	if !ok {
		t.Fatal("task missing from status store")
	}
	if payload.Status != models.TaskStatusComplete {
		t.Fatalf("final status = %s, want COMPLETE", payload.Status)
	}
	if payload.Message != "Video is ready." {
		t.Errorf("message = %q", payload.Message)
	}
	want := "https://cdn.example.com/videos/asha_patel/task-1.mp4"
	if payload.URL != want {
		t.Errorf("url = %q, want %q", payload.URL, want)
	}
}

func TestHandleJobFailure(t *testing.T) {
	llm := &scriptedLLM{fail: true}
	w, store := newTestWorker(t, llm)

	w.handleJob(testJob())

	payload, ok := store.Get(context.Background(), "task-1")
	if !ok {
		t.Fatal("task missing from status store")
	}
	if payload.Status != models.TaskStatusFailed {
		t.Fatalf("final status = %s, want FAILED", payload.Status)
	}
	// The pipeline's diagnostic travels verbatim in the message.
	if !strings.Contains(payload.Message, "storyboard generation failed") ||
		!strings.Contains(payload.Message, "model unavailable") {
		t.Errorf("message does not carry the pipeline error: %q", payload.Message)
	}
	if payload.URL != "" {
		t.Errorf("FAILED payload carries a URL: %q", payload.URL)
	}
}
