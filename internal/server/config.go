package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 64 * 1024
	defaultRateLimitBurst  = 20
	defaultRefillInterval  = time.Second
	defaultSendBufferSize  = 256
	defaultShutdownTimeout = 30 * time.Second
	defaultCensorCharacter = '*'
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server settings. Fields are read from the environment by
// LoadConfig; list-valued variables stay raw here and are split by accessors.
type Config struct {
	Port                    string        `env:"SERVER_PORT,default=:8080"`
	RawAllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize          int64         `env:"MAX_MESSAGE_SIZE,default=65536"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=20"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	SendBufferSize          int           `env:"SEND_BUFFER_SIZE,default=256"`
	LogLevel                string        `env:"LOG_LEVEL,default=INFO"`
	JWTSecret               string        `env:"JWT_SECRET"`
	RawCensoredWords        string        `env:"CENSORED_WORDS"`
	CensorCharacter         string        `env:"CENSOR_CHARACTER,default=*"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
}

// DefaultConfig returns the configuration used when the environment is empty.
func DefaultConfig() Config {
	return Config{
		Port:                    defaultPort,
		RawAllowedOrigins:       "http://localhost:8080",
		MaxMessageSize:          defaultMaxMessageSize,
		RateLimitBurst:          defaultRateLimitBurst,
		RateLimitRefillInterval: defaultRefillInterval,
		SendBufferSize:          defaultSendBufferSize,
		LogLevel:                slog.LevelInfo.String(),
		CensorCharacter:         string(defaultCensorCharacter),
		ShutdownTimeout:         defaultShutdownTimeout,
	}
}

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading configuration from environment: %w", err)
	}
	return cfg.Sanitize(), nil
}

// Sanitize replaces out-of-range values with their defaults.
func (cfg Config) Sanitize() Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.RateLimitRefillInterval <= 0 {
		cfg.RateLimitRefillInterval = defaultRefillInterval
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = slog.LevelInfo.String()
	}
	if utf8.RuneCountInString(cfg.CensorCharacter) != 1 {
		cfg.CensorCharacter = string(defaultCensorCharacter)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return cfg
}

// AllowedOrigins splits ALLOWED_ORIGINS on commas.
func (cfg Config) AllowedOrigins() []string {
	return parseList(cfg.RawAllowedOrigins)
}

// CensoredWords splits CENSORED_WORDS on commas.
func (cfg Config) CensoredWords() []string {
	return parseList(cfg.RawCensoredWords)
}

func (cfg Config) CensorRune() rune {
	r, _ := utf8.DecodeRuneInString(cfg.CensorCharacter)
	if r == utf8.RuneError {
		return defaultCensorCharacter
	}
	return r
}

func (cfg Config) RateLimit() RateLimitConfig {
	return RateLimitConfig{Burst: cfg.RateLimitBurst, RefillInterval: cfg.RateLimitRefillInterval}
}

func parseList(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(part string, _ int) string {
		return strings.TrimSpace(part)
	}))
}
