package generator

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiBackend implements Backend for Google Gemini.
type GeminiBackend struct {
	client *genai.Client
	cfg    Config
	safety []*genai.SafetySetting
}

// NewGeminiBackend creates a Gemini backend.
func NewGeminiBackend(ctx context.Context, cfg Config) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiBackend{
		client: client,
		cfg:    cfg,
		safety: safetySettings(cfg.SafetyThreshold),
	}, nil
}

// Provider returns the backend name.
func (b *GeminiBackend) Provider() string {
	return "gemini"
}

// GenerateText sends the prompt with the configured generation parameters
// and safety thresholds.
func (b *GeminiBackend) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(b.cfg.Temperature)),
		TopP:            genai.Ptr(float32(b.cfg.TopP)),
		TopK:            genai.Ptr(float32(b.cfg.TopK)),
		MaxOutputTokens: int32(b.cfg.MaxOutputTokens),
		SafetySettings:  b.safety,
	})
	if err != nil {
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrBlocked, resp.PromptFeedback.BlockReason)
	}

	if len(resp.Candidates) == 0 {
		return "", ErrEmptyCompletion
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: completion blocked", ErrBlocked)
	}

	if candidate.Content == nil {
		return "", ErrEmptyCompletion
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	return text.String(), nil
}

// safetySettings applies one threshold to the four harm categories, the way
// the persona was originally tuned.
func safetySettings(threshold string) []*genai.SafetySetting {
	level := parseThreshold(threshold)

	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}

	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: level,
		})
	}
	return settings
}

func parseThreshold(threshold string) genai.HarmBlockThreshold {
	switch threshold {
	case "BLOCK_NONE":
		return genai.HarmBlockThresholdBlockNone
	case "BLOCK_ONLY_HIGH":
		return genai.HarmBlockThresholdBlockOnlyHigh
	case "BLOCK_LOW_AND_ABOVE":
		return genai.HarmBlockThresholdBlockLowAndAbove
	case "BLOCK_MEDIUM_AND_ABOVE", "":
		return genai.HarmBlockThresholdBlockMediumAndAbove
	default:
		return genai.HarmBlockThresholdBlockMediumAndAbove
	}
}
