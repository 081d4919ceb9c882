package generator

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIBackend implements Backend for OpenAI chat completions.
type OpenAIBackend struct {
	client openai.Client
	cfg    Config
}

// NewOpenAIBackend creates an OpenAI backend.
func NewOpenAIBackend(cfg Config) *OpenAIBackend {
	return &OpenAIBackend{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
	}
}

// Provider returns the backend name.
func (b *OpenAIBackend) Provider() string {
	return "openai"
}

// GenerateText sends the assembled prompt as a single user message. The
// persona instructions travel inside the prompt, not as a system message,
// so prompt assembly stays in one place. OpenAI has no top_k parameter.
func (b *OpenAIBackend) GenerateText(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}

	if b.cfg.Temperature > 0 {
		params.Temperature = openai.Float(b.cfg.Temperature)
	}
	if b.cfg.TopP > 0 {
		params.TopP = openai.Float(b.cfg.TopP)
	}
	if b.cfg.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(b.cfg.MaxOutputTokens))
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", ErrBlocked
	}

	return choice.Message.Content, nil
}
