package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Redis — backs both the job queue and the task status store
	RedisURL string

	// Database — optional task archive (empty = archive disabled)
	DatabaseURL string

	// Gemini (primary LLM provider)
	GeminiKey   string
	GeminiModel string

	// OpenAI (alternative LLM provider — used when LLM_PROVIDER=openai)
	LLMProvider string // "gemini" or "openai"
	OpenAIKey   string

	// ElevenLabs TTS
	ElevenLabsKey string

	// AssetsRoot is the directory containing the assets/ tree that render
	// scripts reference by relative path and that holds the default music
	// files. The render engine runs from here; relative music paths are
	// resolved against it.
	AssetsRoot string

	// Rendering
	Renderer              string // "manim" or "browser"
	ManimBin              string
	BrowserRendererScript string // Node script driving the headless-browser recorder
	RenderTimeoutSeconds  int
	RenderConcurrency     int // Width of the cross-scene render gate (1 = fully serial)

	// Audio post-processing
	NarrationSpeedFactor float64 // atempo factor applied to raw TTS output

	// Music
	MusicPaths  []string // Candidate background music tracks, one chosen per task
	MusicVolume float64

	// Storage
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string
	PublicURLBase     string // Base joined with the storage key to form the final URL

	// Working directory for per-task intermediate files
	WorkDir string

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		LLMProvider:        getEnv("LLM_PROVIDER", "gemini"),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),

		AssetsRoot: getEnv("ASSETS_ROOT", "."),

		Renderer:              getEnv("RENDERER", "manim"),
		ManimBin:              getEnv("MANIM_BIN", "manim"),
		BrowserRendererScript: getEnv("BROWSER_RENDERER_SCRIPT", "frontend/render.js"),
		RenderTimeoutSeconds:  getEnvInt("RENDER_TIMEOUT_SECONDS", 600),
		RenderConcurrency:     getEnvInt("RENDER_CONCURRENCY", 1),

		NarrationSpeedFactor: getEnvFloat("NARRATION_SPEED_FACTOR", 0.90),

		MusicPaths:  splitList(getEnv("BACKGROUND_MUSIC_PATHS", "assets/music/mu1.mp3,assets/music/mu2.mp3")),
		MusicVolume: getEnvFloat("BACKGROUND_MUSIC_VOLUME", 0.22),

		StorageURL:        getEnv("STORAGE_URL", ""),
		StorageServiceKey: getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:     getEnv("STORAGE_BUCKET", "mathtoons-videos"),
		PublicURLBase:     getEnv("PUBLIC_URL_BASE", ""),

		WorkDir: getEnv("WORK_DIR", "/tmp/mathtoons"),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 2),
	}

	// Validate required fields
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (allowed: gemini, openai)", cfg.LLMProvider)
	}

	if cfg.ElevenLabsKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required for TTS")
	}

	if cfg.Renderer != "manim" && cfg.Renderer != "browser" {
		return nil, fmt.Errorf("unknown RENDERER %q (allowed: manim, browser)", cfg.Renderer)
	}

	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	if cfg.RenderConcurrency < 1 {
		cfg.RenderConcurrency = 1
	}

	// Relative music paths live under the assets root, same as the render
	// scripts' relative asset references.
	for i, p := range cfg.MusicPaths {
		if !filepath.IsAbs(p) {
			cfg.MusicPaths[i] = filepath.Join(cfg.AssetsRoot, p)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
