package generator

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend implements Backend for Anthropic Claude.
type AnthropicBackend struct {
	client anthropic.Client
	cfg    Config
}

// NewAnthropicBackend creates an Anthropic backend.
func NewAnthropicBackend(cfg Config) *AnthropicBackend {
	return &AnthropicBackend{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
	}
}

// Provider returns the backend name.
func (b *AnthropicBackend) Provider() string {
	return "anthropic"
}

// GenerateText sends the assembled prompt as a single user message.
func (b *AnthropicBackend) GenerateText(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.cfg.Model),
		MaxTokens: int64(b.cfg.MaxOutputTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	if b.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(b.cfg.Temperature)
	}
	if b.cfg.TopP > 0 {
		params.TopP = anthropic.Float(b.cfg.TopP)
	}
	if b.cfg.TopK > 0 {
		params.TopK = anthropic.Int(int64(b.cfg.TopK))
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	if resp.StopReason == anthropic.StopReasonRefusal {
		return "", ErrBlocked
	}

	text := ""
	for _, block := range resp.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += textBlock.Text
		}
	}

	if text == "" {
		return "", ErrEmptyCompletion
	}

	return text, nil
}
