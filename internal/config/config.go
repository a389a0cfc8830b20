package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Ollama    OllamaConfig
	Retrieval RetrievalConfig
	Outlets   OutletsConfig
	Session   SessionConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port int
	Host string
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type RetrievalConfig struct {
	TopK     int
	MinScore float64
}

type OutletsConfig struct {
	// AreasFile replaces the embedded area list when set.
	AreasFile string
	MaxRows   int
}

type SessionConfig struct {
	Backend  string // "memory" or "redis"
	RedisURL string
	TTL      time.Duration
}

type AuthConfig struct {
	// Token guards the write and history endpoints. Empty disables auth.
	Token string
}

const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8787,
			Host: "127.0.0.1",
		},
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Retrieval: RetrievalConfig{TopK: 3},
		Outlets:   OutletsConfig{MaxRows: 50},
		Session: SessionConfig{
			Backend: SessionMemory,
			TTL:     24 * time.Hour,
		},
	}
}

// Load builds the configuration from, in increasing priority: defaults,
// a .env file in the working directory, the JSON file at
// $XDG_CONFIG_HOME/kopi/config.json and KOPI_* environment variables.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), ".env")
}

func loadWith(b ConfigBackend, envFile string) (Config, error) {
	cfg := defaults()

	if envFile != "" {
		dotenv, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			applyEnv(&cfg, func(k string) string { return dotenv[k] })
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	applyBackend(&cfg, b)

	applyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MinScore < -1 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval.min_score must be between -1 and 1, got %v", c.Retrieval.MinScore)
	}
	if c.Outlets.MaxRows < 1 {
		return fmt.Errorf("outlets.max_rows must be at least 1, got %d", c.Outlets.MaxRows)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	switch c.Session.Backend {
	case SessionMemory:
	case SessionRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session.backend is redis but session.redis_url is empty; set KOPI_SESSION_REDIS_URL")
		}
	default:
		return fmt.Errorf("session.backend must be %q or %q, got %q", SessionMemory, SessionRedis, c.Session.Backend)
	}
	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", s)
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
