package config

import (
	"path/filepath"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("ELEVENLABS_API_KEY", "e")
	t.Setenv("STORAGE_URL", "https://storage.example.com")
	t.Setenv("STORAGE_SERVICE_KEY", "k")
}

func TestLoadResolvesMusicPathsUnderAssetsRoot(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ASSETS_ROOT", "/opt/mathtoons")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// The default music list is relative, so it follows the assets root —
	// the same root the render engine runs from.
	want := filepath.Join("/opt/mathtoons", "assets/music/mu1.mp3")
	if len(cfg.MusicPaths) == 0 || cfg.MusicPaths[0] != want {
		t.Errorf("MusicPaths = %v, want first entry %q", cfg.MusicPaths, want)
	}
}

func TestLoadKeepsAbsoluteMusicPaths(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ASSETS_ROOT", "/opt/mathtoons")
	t.Setenv("BACKGROUND_MUSIC_PATHS", "/srv/music/a.mp3,assets/music/b.mp3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MusicPaths[0] != "/srv/music/a.mp3" {
		t.Errorf("absolute path rewritten: %q", cfg.MusicPaths[0])
	}
	if cfg.MusicPaths[1] != filepath.Join("/opt/mathtoons", "assets/music/b.mp3") {
		t.Errorf("relative path not resolved: %q", cfg.MusicPaths[1])
	}
}

func TestLoadRejectsUnknownLLMProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LLM_PROVIDER", "llama")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown LLM provider")
	}
}
