package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const animationFixture = `{"scenes": [
	{"scene_number": 1, "animation": {"sprite": "dino", "verb": "wave"}},
	{"scene_number": 2, "animation": {"sprite": "mango", "verb": "bounce"}}
]}`

func TestBrowserRenderScene(t *testing.T) {
	outputDir := t.TempDir()
	scriptPath := filepath.Join(outputDir, "master_script_abc.json")
	if err := os.WriteFile(scriptPath, []byte(animationFixture), 0644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{
		handler: func(dir, name string, args []string) (string, error) {
			// The recorder drops one video into its --out-dir (last arg)
			return "", os.WriteFile(filepath.Join(args[len(args)-1], "recording.webm"), []byte("vid"), 0644)
		},
	}
	r := NewBrowserRenderer("render.js", runner, time.Minute)

	path, err := r.RenderScene(context.Background(), scriptPath, 2, outputDir)
	if err != nil {
		t.Fatalf("RenderScene failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "scene_2_") || !strings.HasSuffix(path, ".webm") {
		t.Errorf("canonical path = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("recording was not moved into place")
	}

	call := runner.calls[0]
	if call[0] != "node" || !hasArg(call, "render.js") || !hasArg(call, "--animation") {
		t.Errorf("unexpected recorder invocation: %v", call)
	}
}

func TestBrowserRenderSceneUnknownScene(t *testing.T) {
	outputDir := t.TempDir()
	scriptPath := filepath.Join(outputDir, "script.json")
	if err := os.WriteFile(scriptPath, []byte(animationFixture), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewBrowserRenderer("render.js", &fakeRunner{}, time.Minute)

	_, err := r.RenderScene(context.Background(), scriptPath, 9, outputDir)
	if err == nil || !strings.Contains(err.Error(), "no entry for scene 9") {
		t.Fatalf("expected unknown-scene error, got %v", err)
	}
}
