package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini Text Generation Service
// Primary LLM provider for storyboard and render-script generation.
// Safety categories are relaxed to BLOCK_NONE: storyboards for children's
// math videos trip overzealous filters surprisingly often.
// ---------------------------------------------------------------------------

const (
	geminiMaxAttempts  = 7
	geminiRetryBackoff = 5 * time.Second
)

type GeminiService struct {
	client *genai.Client
	model  string
}

// Ensure GeminiService implements TextGenerator at compile time.
var _ TextGenerator = (*GeminiService)(nil)

// NewGeminiService creates a Gemini text generation service.
// model: the Gemini model identifier (empty defaults to gemini-2.5-flash-lite).
func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiService{client: client, model: model}, nil
}

func geminiSafetySettings() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	}
}

// GenerateText sends a prompt to Gemini, retrying transient failures with a
// fixed backoff. An empty response after a successful call is an error, not
// a retry — it usually means a safety block that repeating won't fix.
func (s *GeminiService) GenerateText(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SafetySettings: geminiSafetySettings(),
	}

	var lastErr error
	for attempt := 1; attempt <= geminiMaxAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("[Gemini] Retry %d/%d after error: %v", attempt, geminiMaxAttempts, lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("gemini call cancelled: %w", ctx.Err())
			case <-time.After(geminiRetryBackoff):
			}
		}

		resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), config)
		if err != nil {
			lastErr = err
			continue
		}

		text := resp.Text()
		if text == "" {
			return "", fmt.Errorf("the model returned an empty response, likely due to safety filters")
		}

		return text, nil
	}

	return "", fmt.Errorf("gemini call failed after %d attempts: %w", geminiMaxAttempts, lastErr)
}
