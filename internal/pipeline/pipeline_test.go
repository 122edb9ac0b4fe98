package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mathtoons/mathtoons/internal/models"
	"github.com/mathtoons/mathtoons/internal/services"
)

// --- fakes -----------------------------------------------------------------

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (f *fakeLLM) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.prompts = append(f.prompts, prompt)
	if len(f.responses) == 0 {
		return "", fmt.Errorf("fakeLLM: no response queued")
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r, nil
}

type fakeRenderer struct {
	failScenes map[int]bool
	delay      time.Duration

	current int32
	maxSeen int32
}

func (f *fakeRenderer) ScriptKind() services.ScriptKind { return services.ScriptKindPython }

func (f *fakeRenderer) RenderScene(ctx context.Context, scriptPath string, sceneNumber int, outputDir string) (string, error) {
	cur := atomic.AddInt32(&f.current, 1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	atomic.AddInt32(&f.current, -1)

	if f.failScenes[sceneNumber] {
		return "", fmt.Errorf("engine exploded")
	}
	return fmt.Sprintf("%s/scene_%d.mp4", outputDir, sceneNumber), nil
}

type fakeTTS struct {
	failAll bool
}

func (f *fakeTTS) GenerateNarration(ctx context.Context, narration, character, lang, outputDir string) (string, error) {
	if f.failAll {
		return "", fmt.Errorf("voice service down")
	}
	return outputDir + "/audio.mp3", nil
}

type fakeMedia struct {
	mu           sync.Mutex
	failCombine  bool
	failStitch   bool
	stitchInputs []string
}

func (f *fakeMedia) CombineSceneAssets(ctx context.Context, videoPath, audioPath, outputDir string) (string, error) {
	if f.failCombine {
		return "", fmt.Errorf("combine blew up")
	}
	return "combined_" + videoPath, nil
}

func (f *fakeMedia) StitchFinalVideo(ctx context.Context, scenePaths []string, outputDir string, musicPaths []string) (string, error) {
	f.mu.Lock()
	f.stitchInputs = append([]string(nil), scenePaths...)
	f.mu.Unlock()
	if f.failStitch {
		return "", fmt.Errorf("stitch blew up")
	}
	return outputDir + "/final_video.mp4", nil
}

type fakeUploader struct {
	mu      sync.Mutex
	lastKey string
	err     error
}

func (f *fakeUploader) UploadFile(ctx context.Context, localPath, destinationKey, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.lastKey = destinationKey
	return destinationKey, nil
}

// --- helpers ---------------------------------------------------------------

const storyboardJSON = "```json\n" + `{"storyboard": [
	{"scene_number": 1, "scene_description": "Dino waves hello", "narration": "Hi Asha... let's count mangoes!"},
	{"scene_number": 2, "scene_description": "Five mangoes appear", "narration": "Here are five juicy mangoes..."},
	{"scene_number": 3, "scene_description": "Dino celebrates", "narration": "You did it... great job!"}
]}` + "\n```"

const masterScript = "```python\nfrom manim import *\nclass Scene1(Scene):\n    pass\n```"

func testRequest() models.GenerationRequest {
	return models.GenerationRequest{
		StudentName:     "Asha Patel",
		Topic:           "Counting to five",
		Artifacts:       []string{"mango"},
		CharacterPreset: "dino",
		Lang:            "en",
	}
}

func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	if cfg.LLM == nil {
		cfg.LLM = &fakeLLM{responses: []string{storyboardJSON, masterScript}}
	}
	if cfg.Renderer == nil {
		cfg.Renderer = &fakeRenderer{}
	}
	if cfg.TTS == nil {
		cfg.TTS = &fakeTTS{}
	}
	if cfg.Media == nil {
		cfg.Media = &fakeMedia{}
	}
	if cfg.Uploader == nil {
		cfg.Uploader = &fakeUploader{}
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = t.TempDir()
	}
	if cfg.PublicURLBase == "" {
		cfg.PublicURLBase = "https://cdn.example.com/videos"
	}
	return New(cfg)
}

// --- tests -----------------------------------------------------------------

func TestRunHappyPath(t *testing.T) {
	media := &fakeMedia{}
	uploader := &fakeUploader{}
	p := newTestPipeline(t, Config{Media: media, Uploader: uploader})

	url, err := p.Run(context.Background(), "task-123", testRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantKey := "asha_patel/task-123.mp4"
	if uploader.lastKey != wantKey {
		t.Errorf("uploaded key = %q, want %q", uploader.lastKey, wantKey)
	}
	wantURL := "https://cdn.example.com/videos/" + wantKey
	if url != wantURL {
		t.Errorf("url = %q, want %q", url, wantURL)
	}
	if len(media.stitchInputs) != 3 {
		t.Errorf("stitched %d scenes, want 3", len(media.stitchInputs))
	}
}

func TestRunStoryboardNotJSON(t *testing.T) {
	p := newTestPipeline(t, Config{
		LLM: &fakeLLM{responses: []string{"Sure! Here is your storyboard: ..."}},
	})

	_, err := p.Run(context.Background(), "task-bad", testRequest())
	if err == nil || !strings.Contains(err.Error(), "not valid JSON") {
		t.Fatalf("expected JSON decode error, got %v", err)
	}
}

func TestRunStoryboardNoScenes(t *testing.T) {
	p := newTestPipeline(t, Config{
		LLM: &fakeLLM{responses: []string{`{"storyboard": []}`}},
	})

	_, err := p.Run(context.Background(), "task-empty", testRequest())
	if err == nil || !strings.Contains(err.Error(), "no scenes") {
		t.Fatalf("expected no-scenes error, got %v", err)
	}
}

func TestRunSurvivesPartialSceneFailure(t *testing.T) {
	media := &fakeMedia{}
	p := newTestPipeline(t, Config{
		Renderer: &fakeRenderer{failScenes: map[int]bool{2: true}},
		Media:    media,
	})

	_, err := p.Run(context.Background(), "task-partial", testRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(media.stitchInputs) != 2 {
		t.Fatalf("stitched %d scenes, want 2", len(media.stitchInputs))
	}
	// Surviving scenes stay in storyboard order.
	if !strings.Contains(media.stitchInputs[0], "scene_1") || !strings.Contains(media.stitchInputs[1], "scene_3") {
		t.Errorf("stitch inputs out of order: %v", media.stitchInputs)
	}
}

func TestRunAllScenesFailed(t *testing.T) {
	p := newTestPipeline(t, Config{
		TTS: &fakeTTS{failAll: true},
	})

	_, err := p.Run(context.Background(), "task-doomed", testRequest())
	if err == nil || !strings.Contains(err.Error(), "all scenes failed to generate") {
		t.Fatalf("expected all-scenes-failed error, got %v", err)
	}
}

func TestRunAllCombinesFailed(t *testing.T) {
	p := newTestPipeline(t, Config{
		Media: &fakeMedia{failCombine: true},
	})

	_, err := p.Run(context.Background(), "task-nocombine", testRequest())
	if err == nil || !strings.Contains(err.Error(), "all scenes failed to combine") {
		t.Fatalf("expected all-combines-failed error, got %v", err)
	}
}

func TestRunNoPublicURLBase(t *testing.T) {
	uploader := &fakeUploader{}
	p := newTestPipeline(t, Config{Uploader: uploader})
	p.publicURLBase = ""

	_, err := p.Run(context.Background(), "task-nourl", testRequest())
	if !errors.Is(err, ErrNoPublicURLBase) {
		t.Fatalf("expected ErrNoPublicURLBase, got %v", err)
	}
	// The upload itself happened; the error names the key.
	if uploader.lastKey == "" {
		t.Error("upload was skipped")
	}
	if !strings.Contains(err.Error(), uploader.lastKey) {
		t.Errorf("error %q does not carry the storage key", err)
	}
}

func TestRenderGateSerializesRenders(t *testing.T) {
	renderer := &fakeRenderer{delay: 10 * time.Millisecond}
	p := newTestPipeline(t, Config{
		Renderer:          renderer,
		RenderConcurrency: 1,
	})

	if _, err := p.Run(context.Background(), "task-gate", testRequest()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if max := atomic.LoadInt32(&renderer.maxSeen); max > 1 {
		t.Errorf("saw %d concurrent renders, gate width is 1", max)
	}
}

func TestStorageKey(t *testing.T) {
	got := StorageKey("Asha Patel", "abc-123")
	want := "asha_patel/abc-123.mp4"
	if got != want {
		t.Errorf("StorageKey = %q, want %q", got, want)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
	}
	for _, c := range cases {
		if got := stripCodeFences(c.in); got != c.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractCodeBlock(t *testing.T) {
	in := "Here you go:\n```python\nfrom manim import *\n```\nEnjoy!"
	want := "from manim import *"
	if got := extractCodeBlock(in, "python"); got != want {
		t.Errorf("extractCodeBlock = %q, want %q", got, want)
	}

	// No fence at all still yields the raw text.
	if got := extractCodeBlock("from manim import *", "python"); got != want {
		t.Errorf("extractCodeBlock without fence = %q, want %q", got, want)
	}
}

func TestBuildStoryboardPromptMentionsLanguageRule(t *testing.T) {
	req := testRequest()
	req.Lang = "hi"
	prompt := buildStoryboardPrompt(req)
	if !strings.Contains(prompt, "Devanagari") {
		t.Error("prompt is missing the Devanagari narration rule")
	}
	if !strings.Contains(prompt, req.Topic) {
		t.Error("prompt is missing the topic")
	}
}
