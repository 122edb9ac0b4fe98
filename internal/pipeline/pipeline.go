package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mathtoons/mathtoons/internal/models"
	"github.com/mathtoons/mathtoons/internal/services"
)

// ErrNoPublicURLBase is returned when the final video was uploaded but no
// public URL base is configured, so no playable link can be assembled. The
// upload itself succeeded; the error text carries the storage key.
var ErrNoPublicURLBase = errors.New("upload succeeded but no public URL base is configured")

// AssetCombiner is the media-composition surface the pipeline needs:
// per-scene video+audio merging and the final concatenation with music.
type AssetCombiner interface {
	CombineSceneAssets(ctx context.Context, videoPath, audioPath, outputDir string) (string, error)
	StitchFinalVideo(ctx context.Context, scenePaths []string, outputDir string, musicPaths []string) (string, error)
}

// Uploader pushes a local file to object storage under a destination key.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, destinationKey, contentType string) (string, error)
}

// Config wires the pipeline's collaborators and tuning knobs.
type Config struct {
	LLM      services.TextGenerator
	Renderer services.SceneRenderer
	TTS      services.TTSService
	Media    AssetCombiner
	Uploader Uploader

	// WorkDir is the root for per-task working directories.
	WorkDir string

	// MusicPaths are the candidate background tracks for the final stitch.
	MusicPaths []string

	// PublicURLBase prefixes uploaded storage keys to form playable URLs.
	PublicURLBase string

	// RenderConcurrency is the cross-task width of the render gate. Values
	// below 1 are clamped to 1 — renders are the memory-heavy step and the
	// gate exists to keep them from piling up.
	RenderConcurrency int
}

// Pipeline runs one video-generation task end to end: storyboard, master
// render script, per-scene render+narration fan-out, combine, stitch,
// upload. A single Pipeline is shared by all workers; the render gate spans
// every task in the process.
type Pipeline struct {
	llm      services.TextGenerator
	renderer services.SceneRenderer
	tts      services.TTSService
	media    AssetCombiner
	uploader Uploader

	workDir       string
	musicPaths    []string
	publicURLBase string
	renderGate    *semaphore.Weighted
}

func New(cfg Config) *Pipeline {
	width := cfg.RenderConcurrency
	if width < 1 {
		width = 1
	}
	return &Pipeline{
		llm:           cfg.LLM,
		renderer:      cfg.Renderer,
		tts:           cfg.TTS,
		media:         cfg.Media,
		uploader:      cfg.Uploader,
		workDir:       cfg.WorkDir,
		musicPaths:    cfg.MusicPaths,
		publicURLBase: cfg.PublicURLBase,
		renderGate:    semaphore.NewWeighted(int64(width)),
	}
}

// Run executes the full pipeline for one task and returns the public URL of
// the finished video. Any error is fatal for the task; partial scene
// failures are absorbed as long as at least one scene survives every stage.
func (p *Pipeline) Run(ctx context.Context, taskID string, req models.GenerationRequest) (string, error) {
	outputDir := filepath.Join(p.workDir, taskID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create task work dir: %w", err)
	}
	defer p.finishWorkDir(outputDir)

	log.Printf("[Pipeline] Task %s: generating storyboard for topic %q (lang=%s)", taskID, req.Topic, req.Lang)

	storyboard, err := p.generateStoryboard(ctx, req)
	if err != nil {
		return "", err
	}
	log.Printf("[Pipeline] Task %s: storyboard has %d scenes", taskID, len(storyboard.Scenes))

	scriptPath, err := p.generateMasterScript(ctx, storyboard, outputDir)
	if err != nil {
		return "", err
	}

	assets := p.processScenes(ctx, taskID, storyboard, req, scriptPath, outputDir)
	if len(assets) == 0 {
		return "", fmt.Errorf("all scenes failed to generate, no video can be created")
	}
	log.Printf("[Pipeline] Task %s: %d/%d scenes generated successfully", taskID, len(assets), len(storyboard.Scenes))

	combined := p.combineScenes(ctx, taskID, assets, outputDir)
	if len(combined) == 0 {
		return "", fmt.Errorf("all scenes failed to combine, no video can be created")
	}

	finalPath, err := p.media.StitchFinalVideo(ctx, combined, outputDir, p.musicPaths)
	if err != nil {
		return "", fmt.Errorf("failed to stitch final video: %w", err)
	}

	key, err := p.uploader.UploadFile(ctx, finalPath, StorageKey(req.StudentName, taskID), "video/mp4")
	if err != nil {
		return "", fmt.Errorf("failed to upload final video: %w", err)
	}

	if p.publicURLBase == "" {
		return "", fmt.Errorf("%w (key: %s)", ErrNoPublicURLBase, key)
	}

	url := strings.TrimRight(p.publicURLBase, "/") + "/" + key
	log.Printf("[Pipeline] Task %s: video ready at %s", taskID, url)
	return url, nil
}

// StorageKey derives the destination key for a finished video:
// the student's name lowercased with spaces replaced by underscores,
// then the task ID as the file name.
func StorageKey(studentName, taskID string) string {
	folder := strings.ToLower(strings.ReplaceAll(studentName, " ", "_"))
	return folder + "/" + taskID + ".mp4"
}

// generateStoryboard asks the LLM for the scene list and decodes it.
// The three failure modes get distinct errors so the task record says
// what actually went wrong: empty output, non-JSON output, or JSON that
// lacks the storyboard.
func (p *Pipeline) generateStoryboard(ctx context.Context, req models.GenerationRequest) (models.Storyboard, error) {
	var storyboard models.Storyboard

	text, err := p.llm.GenerateText(ctx, buildStoryboardPrompt(req))
	if err != nil {
		return storyboard, fmt.Errorf("storyboard generation failed: %w", err)
	}

	cleaned := stripCodeFences(text)
	if cleaned == "" {
		return storyboard, fmt.Errorf("storyboard generation returned empty output")
	}

	if err := json.Unmarshal([]byte(cleaned), &storyboard); err != nil {
		return storyboard, fmt.Errorf("storyboard output is not valid JSON: %v (raw: %s)", err, truncate(cleaned, 300))
	}

	if len(storyboard.Scenes) == 0 {
		return storyboard, fmt.Errorf("storyboard JSON has no scenes")
	}

	return storyboard, nil
}

// generateMasterScript produces the single render-script artifact covering
// every scene and writes it to the task work dir. The artifact kind (Python
// vs animation JSON) follows the active renderer.
func (p *Pipeline) generateMasterScript(ctx context.Context, storyboard models.Storyboard, outputDir string) (string, error) {
	kind := p.renderer.ScriptKind()

	text, err := p.llm.GenerateText(ctx, buildMasterScriptPrompt(kind, storyboard))
	if err != nil {
		return "", fmt.Errorf("master script generation failed: %w", err)
	}

	var body string
	if kind == services.ScriptKindPython {
		body = extractCodeBlock(text, "python")
	} else {
		body = stripCodeFences(text)
	}
	if body == "" {
		return "", fmt.Errorf("master script generation returned no usable code")
	}

	scriptPath := filepath.Join(outputDir, fmt.Sprintf("master_script_%s%s", uuid.New().String()[:8], kind.Ext()))
	if err := os.WriteFile(scriptPath, []byte(body), 0644); err != nil {
		return "", fmt.Errorf("failed to write master script: %w", err)
	}

	log.Printf("[Pipeline] Master script written: %s", filepath.Base(scriptPath))
	return scriptPath, nil
}

type sceneResult struct {
	asset models.SceneAsset
	err   error
}

// processScenes fans out one goroutine per scene. Each scene is an atomic
// unit: render and narration run concurrently inside it and both must
// succeed. Scene units are independent — one failing does not cancel the
// rest — and the render gate bounds how many renders run at once across
// the whole process. Surviving assets come back in scene-number order.
func (p *Pipeline) processScenes(ctx context.Context, taskID string, storyboard models.Storyboard, req models.GenerationRequest, scriptPath, outputDir string) []models.SceneAsset {
	results := make([]sceneResult, len(storyboard.Scenes))

	var wg sync.WaitGroup
	for i, scene := range storyboard.Scenes {
		wg.Add(1)
		go func(i int, scene models.Scene) {
			defer wg.Done()
			asset, err := p.processScene(ctx, scene, req, scriptPath, outputDir)
			results[i] = sceneResult{asset: asset, err: err}
		}(i, scene)
	}
	wg.Wait()

	var assets []models.SceneAsset
	for _, r := range results {
		if r.err != nil {
			log.Printf("[Pipeline] Task %s: dropping scene: %v", taskID, r.err)
			continue
		}
		assets = append(assets, r.asset)
	}

	sort.Slice(assets, func(i, j int) bool {
		return assets[i].SceneNumber < assets[j].SceneNumber
	})
	return assets
}

// processScene produces one scene's video and narration. The render leg
// holds a render-gate slot for the duration of the engine run; narration
// is cheap and never queues behind the gate.
func (p *Pipeline) processScene(ctx context.Context, scene models.Scene, req models.GenerationRequest, scriptPath, outputDir string) (models.SceneAsset, error) {
	var videoPath, audioPath string

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.renderGate.Acquire(gctx, 1); err != nil {
			return fmt.Errorf("scene %d render cancelled while waiting for a render slot: %w", scene.SceneNumber, err)
		}
		defer p.renderGate.Release(1)

		path, err := p.renderer.RenderScene(gctx, scriptPath, scene.SceneNumber, outputDir)
		if err != nil {
			return fmt.Errorf("scene %d render failed: %w", scene.SceneNumber, err)
		}
		videoPath = path
		return nil
	})

	g.Go(func() error {
		path, err := p.tts.GenerateNarration(gctx, scene.Narration, req.CharacterPreset, req.Lang, outputDir)
		if err != nil {
			return fmt.Errorf("scene %d narration failed: %w", scene.SceneNumber, err)
		}
		audioPath = path
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.SceneAsset{}, err
	}

	return models.SceneAsset{
		SceneNumber: scene.SceneNumber,
		VideoPath:   videoPath,
		AudioPath:   audioPath,
	}, nil
}

// combineScenes merges each scene's video and narration sequentially.
// A scene that fails to combine is dropped with a log line, same policy as
// generation failures.
func (p *Pipeline) combineScenes(ctx context.Context, taskID string, assets []models.SceneAsset, outputDir string) []string {
	var combined []string
	for _, a := range assets {
		path, err := p.media.CombineSceneAssets(ctx, a.VideoPath, a.AudioPath, outputDir)
		if err != nil {
			log.Printf("[Pipeline] Task %s: dropping scene %d, combine failed: %v", taskID, a.SceneNumber, err)
			continue
		}
		combined = append(combined, path)
	}
	return combined
}

// finishWorkDir is the task work dir retention policy: keep everything.
// Intermediate artifacts are the only way to debug a bad render, and the
// work dir lives on ephemeral disk anyway.
func (p *Pipeline) finishWorkDir(outputDir string) {
	log.Printf("[Pipeline] Work dir retained: %s", outputDir)
}

// stripCodeFences removes markdown code fences the model wraps around
// output despite being told not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractCodeBlock pulls the body of the first fenced code block with the
// given language tag. Falls back to a bare fence, then to the raw text,
// since some models skip the fence entirely.
func extractCodeBlock(s, lang string) string {
	s = strings.TrimSpace(s)

	marker := "```" + lang
	start := strings.Index(s, marker)
	if start >= 0 {
		rest := s[start+len(marker):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}

	return stripCodeFences(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...(truncated)"
}
