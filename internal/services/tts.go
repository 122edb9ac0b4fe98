package services

import "context"

// ---------------------------------------------------------------------------
// TTSService — interface for text-to-speech providers
// The pipeline only needs a narration file on disk; the provider decides
// voices and formats.
// ---------------------------------------------------------------------------

// TTSService is the interface any TTS provider must implement.
type TTSService interface {
	// GenerateNarration synthesizes narration audio for one scene into
	// outputDir and returns the final audio file path. character selects the
	// host voice persona; lang is an ISO 639-1 code mapped to a voice
	// identity, falling back to a default when unmapped.
	GenerateNarration(ctx context.Context, narration, character, lang, outputDir string) (string, error)
}
