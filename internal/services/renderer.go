package services

import "context"

// ---------------------------------------------------------------------------
// SceneRenderer — interface for scene rendering engines
// Two engines exist: Manim (external process, Python script in) and the
// headless-browser recorder (animation JSON in). Both are black boxes with a
// success/failure contract — the pipeline never inspects how a video was
// produced.
// ---------------------------------------------------------------------------

// ScriptKind identifies the master script artifact a renderer consumes.
// It selects both the generation prompt and the artifact file extension.
type ScriptKind string

const (
	ScriptKindPython        ScriptKind = "python"
	ScriptKindAnimationJSON ScriptKind = "animation_json"
)

// Ext returns the file extension for a master script artifact of this kind.
func (k ScriptKind) Ext() string {
	if k == ScriptKindAnimationJSON {
		return ".json"
	}
	return ".py"
}

// SceneRenderer renders one storyboard scene from the master script artifact.
type SceneRenderer interface {
	// ScriptKind reports which master script artifact this renderer consumes.
	ScriptKind() ScriptKind

	// RenderScene renders the numbered scene into outputDir and returns the
	// canonical video path. Failures carry the engine's captured output as
	// diagnostic text.
	RenderScene(ctx context.Context, scriptPath string, sceneNumber int, outputDir string) (string, error)
}
