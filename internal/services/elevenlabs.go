package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech Service
// Converts narration text into speech, then slows the audio down with a
// fixed atempo factor — raw synthesis pacing is too fast for young students.
// Model: eleven_turbo_v2_5 (fast, handles Devanagari narration well)
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsModel        = "eleven_turbo_v2_5"
	elevenLabsOutputFormat = "mp3_44100_128"

	// The 'Lily' multilingual voice reads like a friendly child host in all
	// three supported languages.
	elevenLabsDefaultVoice = "pFZP5JQG7iQjIQuC4Bku"
)

// voiceMap selects a voice identity per language. Unmapped languages fall
// back to the default multilingual voice.
var voiceMap = map[string]string{
	"en": "pFZP5JQG7iQjIQuC4Bku",
	"hi": "pFZP5JQG7iQjIQuC4Bku",
	"mr": "pFZP5JQG7iQjIQuC4Bku",
}

// ElevenLabsService handles narration synthesis via the ElevenLabs API.
type ElevenLabsService struct {
	apiKey      string
	speedFactor float64 // atempo factor applied after synthesis (0.90 = 10% slower)
	ffmpeg      *FFmpegService
	client      *http.Client
}

// Ensure ElevenLabsService implements TTSService at compile time.
var _ TTSService = (*ElevenLabsService)(nil)

// NewElevenLabsService creates an ElevenLabs TTS service. ffmpegSvc performs
// the post-synthesis speed adjustment; speedFactor <= 0 defaults to 0.90.
func NewElevenLabsService(apiKey string, ffmpegSvc *FFmpegService, speedFactor float64) *ElevenLabsService {
	if speedFactor <= 0 {
		speedFactor = 0.90
	}
	return &ElevenLabsService{
		apiKey:      apiKey,
		speedFactor: speedFactor,
		ffmpeg:      ffmpegSvc,
		client:      &http.Client{Timeout: 90 * time.Second},
	}
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// VoiceForLanguage resolves the voice identity for a language code.
func VoiceForLanguage(lang string) string {
	if voice, ok := voiceMap[lang]; ok {
		return voice
	}
	return elevenLabsDefaultVoice
}

// GenerateNarration synthesizes speech, slows it down by the configured
// factor, and returns the final audio path. A zero-byte or missing output
// file is a hard failure.
func (s *ElevenLabsService) GenerateNarration(ctx context.Context, narration, character, lang, outputDir string) (string, error) {
	voiceID := VoiceForLanguage(lang)

	outputPath := filepath.Join(outputDir, fmt.Sprintf("scene_audio_%s.mp3", uuid.New().String()[:8]))
	rawPath := outputPath + ".raw.mp3"

	log.Printf("[TTS] Generating audio (voice=%s, lang=%s, character=%s, textLen=%d)", voiceID, lang, character, len(narration))

	audioData, err := s.synthesize(ctx, narration, voiceID)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(rawPath, audioData, 0644); err != nil {
		return "", fmt.Errorf("failed to write raw narration audio: %w", err)
	}
	defer os.Remove(rawPath)

	if err := s.ffmpeg.AdjustAudioSpeed(ctx, rawPath, outputPath, s.speedFactor); err != nil {
		return "", fmt.Errorf("failed to speed-adjust narration: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("TTS failed to create a valid audio file at %s", outputPath)
	}

	log.Printf("[TTS] Narration generated and speed-adjusted by factor %.2f: %s", s.speedFactor, outputPath)
	return outputPath, nil
}

func (s *ElevenLabsService) synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: elevenLabsModel,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		elevenLabsBaseURL, voiceID, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs returned status %d: %s", resp.StatusCode, string(body))
	}

	// The response body IS the audio file
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ElevenLabs audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned empty audio")
	}

	return audioData, nil
}
