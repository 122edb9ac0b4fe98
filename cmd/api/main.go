package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mathtoons/mathtoons/internal/api"
	"github.com/mathtoons/mathtoons/internal/config"
	"github.com/mathtoons/mathtoons/internal/db"
	"github.com/mathtoons/mathtoons/internal/pipeline"
	"github.com/mathtoons/mathtoons/internal/queue"
	"github.com/mathtoons/mathtoons/internal/services"
	"github.com/mathtoons/mathtoons/internal/storage"
	"github.com/mathtoons/mathtoons/internal/taskstore"
	"github.com/mathtoons/mathtoons/internal/worker"
)

func main() {
	log.Println("Starting Mathtoons API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to Redis queue — required, jobs have nowhere else to live
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Task status store — degrades to in-process memory if Redis is down
	store := taskstore.New(cfg.RedisURL)
	defer store.Close()

	// Optional Postgres task archive
	var archive *db.DB
	if cfg.DatabaseURL != "" {
		archive, err = db.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer archive.Close()
		log.Println("Connected to task archive database")
	} else {
		log.Println("No DATABASE_URL set — task archive disabled")
	}

	// Object storage for finished videos
	stor := storage.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
	log.Println("Initialized object storage")

	// Create API handler
	handler := api.NewHandler(store, q, archive)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start workers if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		runner := &services.RealExecRunner{}
		renderTimeout := time.Duration(cfg.RenderTimeoutSeconds) * time.Second

		// LLM provider
		var llm services.TextGenerator
		switch cfg.LLMProvider {
		case "openai":
			llm = services.NewOpenAIService(cfg.OpenAIKey)
			log.Println("LLM provider: OpenAI")
		default:
			llm, err = services.NewGeminiService(context.Background(), cfg.GeminiKey, cfg.GeminiModel)
			if err != nil {
				log.Fatalf("Failed to create Gemini client: %v", err)
			}
			log.Printf("LLM provider: Gemini (model: %s)", cfg.GeminiModel)
		}

		// Scene renderer
		var renderer services.SceneRenderer
		if cfg.Renderer == "browser" {
			renderer = services.NewBrowserRenderer(cfg.BrowserRendererScript, runner, renderTimeout)
			log.Printf("Renderer: headless browser (script: %s)", cfg.BrowserRendererScript)
		} else {
			renderer = services.NewManimRenderer(cfg.ManimBin, cfg.AssetsRoot, runner, renderTimeout)
			log.Printf("Renderer: Manim (bin: %s)", cfg.ManimBin)
		}

		ffmpegSvc := services.NewFFmpegService(runner, cfg.MusicVolume)
		ttsSvc := services.NewElevenLabsService(cfg.ElevenLabsKey, ffmpegSvc, cfg.NarrationSpeedFactor)
		log.Println("TTS provider: ElevenLabs (model: eleven_turbo_v2_5)")

		pipe := pipeline.New(pipeline.Config{
			LLM:               llm,
			Renderer:          renderer,
			TTS:               ttsSvc,
			Media:             ffmpegSvc,
			Uploader:          stor,
			WorkDir:           cfg.WorkDir,
			MusicPaths:        cfg.MusicPaths,
			PublicURLBase:     cfg.PublicURLBase,
			RenderConcurrency: cfg.RenderConcurrency,
		})

		workerCtx, workerCancel = context.WithCancel(context.Background())
		for i := 1; i <= cfg.MaxConcurrentJobs; i++ {
			w := worker.New(i, q, store, pipe, archive)
			go w.Run(workerCtx)
		}
		log.Printf("Started %d workers (render gate width: %d)", cfg.MaxConcurrentJobs, cfg.RenderConcurrency)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown workers
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
