package services

import (
	"context"
	"fmt"
	"log"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// OpenAI Text Generation Service
// Alternative LLM provider, selected with LLM_PROVIDER=openai. Prompts in
// this pipeline demand raw JSON or code output, so no JSON response mode is
// forced here — the prompts themselves pin the format.
// ---------------------------------------------------------------------------

const (
	openAIModel        = "gpt-5-mini"
	openAIMaxAttempts  = 5
	openAIRetryBackoff = 5 * time.Second
)

type OpenAIService struct {
	client *openai.Client
}

var _ TextGenerator = (*OpenAIService)(nil)

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// GenerateText sends a prompt as a single user message and returns the
// completion text, retrying transient failures with a fixed backoff.
func (s *OpenAIService) GenerateText(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= openAIMaxAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("[OpenAI] Retry %d/%d after error: %v", attempt, openAIMaxAttempts, lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("openai call cancelled: %w", ctx.Err())
			case <-time.After(openAIRetryBackoff):
			}
		}

		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: openAIModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		})
		if err != nil {
			lastErr = fmt.Errorf("openai request failed: %w", err)
			continue
		}

		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("the model returned an empty response")
		}

		content := resp.Choices[0].Message.Content
		if content == "" {
			return "", fmt.Errorf("the model returned an empty response")
		}

		return content, nil
	}

	return "", fmt.Errorf("openai call failed after %d attempts: %w", openAIMaxAttempts, lastErr)
}
