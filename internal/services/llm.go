package services

import "context"

// ---------------------------------------------------------------------------
// TextGenerator — common interface for LLM text providers
// Gemini is the primary provider; OpenAI is the alternative. Both return the
// raw response text — storyboard JSON parsing and code-block extraction are
// the caller's concern.
// ---------------------------------------------------------------------------

// TextGenerator is the interface any LLM text provider must implement.
// Implementations retry transient failures internally with fixed backoff;
// an error means all attempts were exhausted.
type TextGenerator interface {
	// GenerateText sends a prompt and returns the model's raw text response.
	GenerateText(ctx context.Context, prompt string) (string, error)
}
