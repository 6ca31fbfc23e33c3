package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Room     string `yaml:"room"`
	LogLevel string `yaml:"log_level"`

	API struct {
		BaseURL string        `yaml:"base_url"`
		Token   string        `yaml:"token"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Stream struct {
		Disabled      bool          `yaml:"disabled"`
		Transport     string        `yaml:"transport"` // sse or websocket
		RetryInterval time.Duration `yaml:"retry_interval"`
	} `yaml:"stream"`

	Snapshot struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"snapshot"`

	Profile struct {
		ParticipantID string `yaml:"participant_id"`
		Nickname      string `yaml:"nickname"`
		AvatarURL     string `yaml:"avatar_url"`
	} `yaml:"profile"`

	Gateway struct {
		Enabled bool   `yaml:"enabled"`
		Port    string `yaml:"port"`
	} `yaml:"gateway"`

	Mirror struct {
		Enabled       bool   `yaml:"enabled"`
		NATSURL       string `yaml:"nats_url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"mirror"`
}

const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Default returns the configuration used when no file or environment overrides are present.
func Default() *Config {
	cfg := &Config{LogLevel: "info"}
	cfg.API.Timeout = 10 * time.Second
	cfg.Stream.Transport = TransportSSE
	cfg.Stream.RetryInterval = 2 * time.Second
	cfg.Snapshot.CacheTTL = 30 * time.Second
	cfg.Gateway.Enabled = true
	cfg.Gateway.Port = "8090"
	cfg.Mirror.NATSURL = "nats://localhost:4222"
	cfg.Mirror.StreamName = "ROOM_EVENTS"
	cfg.Mirror.SubjectPrefix = "room.events"
	return cfg
}

// Load reads the YAML file at path (skipped when empty) over the defaults,
// then applies ROOMWATCH_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Room = getEnv("ROOMWATCH_ROOM", c.Room)
	c.LogLevel = getEnv("ROOMWATCH_LOG_LEVEL", c.LogLevel)

	c.API.BaseURL = getEnv("ROOMWATCH_API_URL", c.API.BaseURL)
	c.API.Token = getEnv("ROOMWATCH_TOKEN", c.API.Token)
	c.API.Timeout = getEnvAsDuration("ROOMWATCH_API_TIMEOUT", c.API.Timeout)

	c.Stream.Disabled = getEnvAsBool("ROOMWATCH_STREAM_DISABLED", c.Stream.Disabled)
	c.Stream.Transport = getEnv("ROOMWATCH_STREAM_TRANSPORT", c.Stream.Transport)
	if ms := getEnvAsInt("ROOMWATCH_RETRY_MS", 0); ms > 0 {
		c.Stream.RetryInterval = time.Duration(ms) * time.Millisecond
	}

	c.Snapshot.CacheTTL = getEnvAsDuration("ROOMWATCH_CACHE_TTL", c.Snapshot.CacheTTL)

	c.Profile.ParticipantID = getEnv("ROOMWATCH_PARTICIPANT_ID", c.Profile.ParticipantID)
	c.Profile.Nickname = getEnv("ROOMWATCH_NICKNAME", c.Profile.Nickname)

	c.Gateway.Enabled = getEnvAsBool("ROOMWATCH_GATEWAY", c.Gateway.Enabled)
	c.Gateway.Port = getEnv("ROOMWATCH_PORT", c.Gateway.Port)

	c.Mirror.Enabled = getEnvAsBool("ROOMWATCH_MIRROR", c.Mirror.Enabled)
	c.Mirror.NATSURL = getEnv("NATS_URL", c.Mirror.NATSURL)
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url (ROOMWATCH_API_URL) is required")
	}
	switch c.Stream.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("unknown stream transport %q", c.Stream.Transport)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
