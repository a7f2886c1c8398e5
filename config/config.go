package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// RelayConfig configures the development relay (main.go).
type RelayConfig struct {
	Port               string        `env:"PORT" envDefault:"3200"`
	AppDatabaseURL     string        `env:"APP_DATABASE_URL"`
	JWTSecret          string        `env:"JWT_SECRET"`
	CORSAllowOrigins   []string      `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
	RateLimitPerSecond int           `env:"RATE_LIMIT_PER_SECOND" envDefault:"10"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
	RateLimitWindow    int           `env:"RATE_LIMIT_WINDOW_MINUTES" envDefault:"3"`
	HistoryLimit       int           `env:"CHAT_HISTORY_LIMIT" envDefault:"50"`
	ReplyDelay         time.Duration `env:"CHAT_REPLY_DELAY" envDefault:"300ms"`

	// Gemini answers free-form input when a key is set; otherwise the rule table does.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
}

// ClientConfig configures the terminal chat client (cmd/chat).
type ClientConfig struct {
	Transport    string        `env:"MANGWALE_TRANSPORT" envDefault:"socket"`
	SocketURL    string        `env:"MANGWALE_WS_URL" envDefault:"ws://localhost:3200/ws"`
	APIBaseURL   string        `env:"MANGWALE_API_URL" envDefault:"http://localhost:3200"`
	StatePath    string        `env:"MANGWALE_STATE_PATH" envDefault:"mangwale-chat.db"`
	PollInterval time.Duration `env:"MANGWALE_POLL_INTERVAL" envDefault:"3s"`
	Platform     string        `env:"MANGWALE_PLATFORM" envDefault:"web"`

	AuthToken string `env:"MANGWALE_AUTH_TOKEN"`
	UserID    int64  `env:"MANGWALE_USER_ID"`
	Phone     string `env:"MANGWALE_PHONE"`
	Name      string `env:"MANGWALE_NAME"`
}

const (
	TransportSocket = "socket"
	TransportPoll   = "poll"

	// StateInMemory as MANGWALE_STATE_PATH keeps client state in memory only.
	StateInMemory = ":memory:"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadRelay reads .env (a missing file is fine) and parses the relay config.
func LoadRelay() (*RelayConfig, error) {
	_ = godotenv.Load()

	var cfg RelayConfig
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient reads .env (a missing file is fine) and parses the client config.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	var cfg ClientConfig
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if cfg.Transport != TransportSocket && cfg.Transport != TransportPoll {
		return nil, fmt.Errorf("unknown transport %q (want %s or %s)", cfg.Transport, TransportSocket, TransportPoll)
	}
	return &cfg, nil
}

func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
