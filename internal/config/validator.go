package config

import (
	"fmt"
	"strings"
)

var knownProviders = map[string]bool{
	"gemini":    true,
	"openai":    true,
	"anthropic": true,
}

// Validate checks that the configuration can actually run a bot.
func (c *Config) Validate() error {
	var problems []string

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		problems = append(problems, "telegram.bot_token is required")
	}

	if c.AI.APIKey == "" {
		problems = append(problems, "ai.api_key is required")
	}
	if !knownProviders[c.AI.Provider] {
		problems = append(problems, fmt.Sprintf("ai.provider %q is not one of gemini, openai, anthropic", c.AI.Provider))
	}
	if c.AI.Model == "" {
		problems = append(problems, "ai.model is required")
	}
	if c.AI.Timeout <= 0 {
		problems = append(problems, "ai.timeout must be positive")
	}

	if c.Bot.WindowSize < 1 {
		problems = append(problems, "bot.window_size must be at least 1")
	}
	if c.Bot.Fallback == "" {
		problems = append(problems, "bot.fallback text is required")
	}
	if c.Bot.Greeting == "" {
		problems = append(problems, "bot.greeting text is required")
	}

	if c.Session.SweepEnabled && c.Session.IdleMinutes < 1 {
		problems = append(problems, "session.idle_minutes must be at least 1 when sweeping is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		problems = append(problems, "metrics.addr is required when metrics are enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}
