package config

import (
	"time"

	"github.com/savta-labs/savta/pkg/generator"
)

// Config is the full savta configuration.
type Config struct {
	// Telegram transport
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Generative backend
	AI generator.Config `json:"ai" mapstructure:"ai"`

	// Conversation behavior
	Bot BotConfig `json:"bot" mapstructure:"bot"`

	// Session housekeeping
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Observability
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration. Disabling the transport
// leaves the rest of the pipeline running, which tests rely on.
type TelegramConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	BotToken    string `json:"bot_token" mapstructure:"bot_token"`
	PollTimeout int    `json:"poll_timeout" mapstructure:"poll_timeout"` // seconds
}

// BotConfig holds the conversation configuration surface: the context window
// and the fixed user-facing texts. All texts default to the persona's Hebrew
// originals and are passed through verbatim.
type BotConfig struct {
	WindowSize     int    `json:"window_size" mapstructure:"window_size"`
	PersonaFile    string `json:"persona_file" mapstructure:"persona_file"`
	Persona        string `json:"persona" mapstructure:"persona"`
	UserLabel      string `json:"user_label" mapstructure:"user_label"`
	AssistantLabel string `json:"assistant_label" mapstructure:"assistant_label"`
	Greeting       string `json:"greeting" mapstructure:"greeting"`
	Help           string `json:"help" mapstructure:"help"`
	Fallback       string `json:"fallback" mapstructure:"fallback"`
	WatchPersona   bool   `json:"watch_persona" mapstructure:"watch_persona"`
}

// SessionConfig holds session housekeeping configuration. Sweeping and
// archiving are both off by default; without them the session map grows by
// one entry per user ever seen, which is the documented limitation.
type SessionConfig struct {
	SweepEnabled   bool   `json:"sweep_enabled" mapstructure:"sweep_enabled"`
	SweepSchedule  string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
	IdleMinutes    int    `json:"idle_minutes" mapstructure:"idle_minutes"`
	ArchiveEnabled bool   `json:"archive_enabled" mapstructure:"archive_enabled"`
	ArchiveDir     string `json:"archive_dir" mapstructure:"archive_dir"`
}

// MetricsConfig holds the Prometheus listener configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// Default user-facing texts, verbatim from the original persona.
const (
	DefaultGreeting = `שלום מתוק/ה שלי! אני סבתא אביבה.

אני כאן בשבילך, להקשיב ולעזור עם כל מה שעל הלב. יש לי המון ניסיון חיים, והכי חשוב - אוזן קשבת ולב אוהב.

ספר/י לי, מה שלומך היום?`

	DefaultHelp = `כיצד להשתמש בשירות הייעוץ:

🤝 פקודות זמינות:
/start - התחל שיחה חדשה
/help - הצג מידע זה

💭 כיצד לתקשר איתי:
- שתף בחופשיות את מחשבותיך ורגשותיך
- אני כאן להקשיב ולתמוך ללא שיפוטיות
- כל שיחה נשמרת בסודיות מלאה

⚕️ חשוב לזכור:
- אני כאן לתמיכה רגשית ולהקשבה
- במקרים של מצוקה חריפה, תמיד מומלץ לפנות לאיש מקצוע
- קו סיוע נפשי 24/7: 1201

פשוט התחל לכתוב, ואני כאן בשבילך. `

	DefaultFallback = `אני מצטערת, אך נתקלתי בקושי טכני זמני.
האם תוכל לשתף שוב את מחשבותיך? אני כאן להקשיב.`
)

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Enabled:     true,
			PollTimeout: 60,
		},
		AI: generator.DefaultConfig(),
		Bot: BotConfig{
			WindowSize: 5,
			Greeting:   DefaultGreeting,
			Help:       DefaultHelp,
			Fallback:   DefaultFallback,
		},
		Session: SessionConfig{
			SweepSchedule: "@hourly",
			IdleMinutes:   int(12 * time.Hour / time.Minute),
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9091",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}
