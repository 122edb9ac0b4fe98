package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Browser Render Service
// Alternative scene renderer: drives a headless-browser recorder process
// (Node + Playwright) that replays structured animation data and records the
// page to a video file. Consumes an animation-JSON master artifact instead
// of a Python script.
// ---------------------------------------------------------------------------

type BrowserRenderer struct {
	script  string // Node recorder script path
	runner  ExecRunner
	timeout time.Duration
}

var _ SceneRenderer = (*BrowserRenderer)(nil)

func NewBrowserRenderer(script string, runner ExecRunner, timeout time.Duration) *BrowserRenderer {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &BrowserRenderer{script: script, runner: runner, timeout: timeout}
}

func (r *BrowserRenderer) ScriptKind() ScriptKind {
	return ScriptKindAnimationJSON
}

// animationScript is the shape of the animation-JSON master artifact.
type animationScript struct {
	Scenes []struct {
		SceneNumber int             `json:"scene_number"`
		Animation   json.RawMessage `json:"animation"`
	} `json:"scenes"`
}

// RenderScene extracts the numbered scene's animation data, feeds it to the
// recorder process, and moves the recording to a task-scoped canonical path.
func (r *BrowserRenderer) RenderScene(ctx context.Context, scriptPath string, sceneNumber int, outputDir string) (string, error) {
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return "", fmt.Errorf("failed to read animation script: %w", err)
	}

	var script animationScript
	if err := json.Unmarshal(data, &script); err != nil {
		return "", fmt.Errorf("animation script is not valid JSON: %w", err)
	}

	var animation json.RawMessage
	for _, s := range script.Scenes {
		if s.SceneNumber == sceneNumber {
			animation = s.Animation
			break
		}
	}
	if animation == nil {
		return "", fmt.Errorf("animation script has no entry for scene %d", sceneNumber)
	}

	// The recorder gets its own directory so its output file is unambiguous
	// even when the render gate allows concurrent scenes.
	sceneID := fmt.Sprintf("scene_%d_%s", sceneNumber, uuid.New().String()[:8])
	recordDir := filepath.Join(outputDir, "browser_"+sceneID)
	if err := os.MkdirAll(recordDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recorder dir: %w", err)
	}

	animationPath := filepath.Join(recordDir, "animation.json")
	if err := os.WriteFile(animationPath, animation, 0644); err != nil {
		return "", fmt.Errorf("failed to write scene animation data: %w", err)
	}

	renderCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log.Printf("[Browser] Recording scene %d", sceneNumber)

	out, err := r.runner.Run(renderCtx, "", "node", r.script, "--animation", animationPath, "--out-dir", recordDir)
	if err != nil {
		return "", fmt.Errorf("browser render failed for scene %d: %w (output: %s)", sceneNumber, err, truncateOutput(out, 500))
	}

	// The recorder saves one video with a name of its own choosing
	recorded, err := findRecording(recordDir)
	if err != nil {
		return "", fmt.Errorf("browser renderer did not save a video file for scene %d: %w (output: %s)", sceneNumber, err, truncateOutput(out, 500))
	}

	finalPath := filepath.Join(outputDir, sceneID+filepath.Ext(recorded))
	if err := os.Rename(recorded, finalPath); err != nil {
		return "", fmt.Errorf("failed to move recorded scene into place: %w", err)
	}

	log.Printf("[Browser] Scene recorded: %s", finalPath)
	return finalPath, nil
}

func findRecording(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if ext == ".webm" || ext == ".mp4" {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no video file found in %s", dir)
}
