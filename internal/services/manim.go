package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Manim Render Service
// Invokes the Manim engine as an external process to render one scene class
// from the master script. Success means the engine exited zero AND the
// documented output path exists; the file is then moved to a task-scoped
// canonical path.
// ---------------------------------------------------------------------------

type ManimRenderer struct {
	bin     string
	workDir string // CWD for the engine so relative asset paths resolve
	runner  ExecRunner
	timeout time.Duration
}

var _ SceneRenderer = (*ManimRenderer)(nil)

// NewManimRenderer creates a Manim render adapter. bin is the manim
// executable (empty defaults to "manim"); workDir is the directory the
// engine runs from; timeout bounds one render invocation.
func NewManimRenderer(bin, workDir string, runner ExecRunner, timeout time.Duration) *ManimRenderer {
	if bin == "" {
		bin = "manim"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ManimRenderer{bin: bin, workDir: workDir, runner: runner, timeout: timeout}
}

func (r *ManimRenderer) ScriptKind() ScriptKind {
	return ScriptKindPython
}

// RenderScene renders class Scene<N> from the master script at 720p30.
func (r *ManimRenderer) RenderScene(ctx context.Context, scriptPath string, sceneNumber int, outputDir string) (string, error) {
	className := fmt.Sprintf("Scene%d", sceneNumber)

	renderCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log.Printf("[Manim] Rendering %s from %s", className, filepath.Base(scriptPath))

	out, err := r.runner.Run(renderCtx, r.workDir, r.bin, scriptPath, className, "-qm", "--media_dir", outputDir)
	if err != nil {
		return "", fmt.Errorf("manim render failed for %s: %w (output: %s)", className, err, truncateOutput(out, 500))
	}

	// Manim writes to <media_dir>/videos/<script stem>/720p30/<class>.mp4
	scriptStem := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	expectedPath := filepath.Join(outputDir, "videos", scriptStem, "720p30", className+".mp4")

	if _, statErr := os.Stat(expectedPath); statErr != nil {
		return "", fmt.Errorf("manim did not produce the expected video file at %s (output: %s)", expectedPath, truncateOutput(out, 500))
	}

	finalPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s.mp4", className, uuid.New().String()[:4]))
	if err := os.Rename(expectedPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to move rendered scene into place: %w", err)
	}

	log.Printf("[Manim] Scene rendered: %s", finalPath)
	return finalPath, nil
}
