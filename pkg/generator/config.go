package generator

import "time"

// Config is the named generation configuration sent with every backend call.
// These are configuration, not behavior; the defaults reproduce the persona's
// original tuning.
type Config struct {
	Provider        string        `json:"provider" mapstructure:"provider"` // gemini, openai, anthropic
	APIKey          string        `json:"api_key" mapstructure:"api_key"`
	Model           string        `json:"model" mapstructure:"model"`
	Temperature     float64       `json:"temperature" mapstructure:"temperature"`
	TopP            float64       `json:"top_p" mapstructure:"top_p"`
	TopK            int           `json:"top_k" mapstructure:"top_k"`
	MaxOutputTokens int           `json:"max_output_tokens" mapstructure:"max_output_tokens"`
	SafetyThreshold string        `json:"safety_threshold" mapstructure:"safety_threshold"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns the default generation configuration.
func DefaultConfig() Config {
	return Config{
		Provider:        "gemini",
		Model:           "gemini-pro",
		Temperature:     0.9,
		TopP:            1,
		TopK:            40,
		MaxOutputTokens: 2048,
		SafetyThreshold: "BLOCK_MEDIUM_AND_ABOVE",
		Timeout:         30 * time.Second,
	}
}
