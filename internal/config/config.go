package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Live      LiveConfig      `yaml:"live"`
	Sessions  SessionsConfig  `yaml:"sessions"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// ArchiveConfig controls the local spool and its delivery retries.
type ArchiveConfig struct {
	SpoolDir     string        `yaml:"spool_dir"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseBackoff  time.Duration `yaml:"base_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

// KafkaConfig enables publishing finished sessions when Brokers is set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type LiveConfig struct {
	MaxConns int64 `yaml:"max_conns"`
	Buffer   int   `yaml:"buffer"`
}

type SessionsConfig struct {
	CodeLength    int `yaml:"code_length"`
	MaxIDAttempts int `yaml:"max_id_attempts"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix GROUPLIFT_ and underscore-separated paths:
//
//	GROUPLIFT_SERVER_HOST, GROUPLIFT_SERVER_PORT,
//	GROUPLIFT_DB_HOST, GROUPLIFT_DB_PORT, GROUPLIFT_DB_NAME,
//	GROUPLIFT_DB_USER, GROUPLIFT_DB_PASSWORD, GROUPLIFT_DB_SSLMODE,
//	GROUPLIFT_AUTH_API_KEY, GROUPLIFT_TAILSCALE_ENABLED,
//	GROUPLIFT_ARCHIVE_SPOOL_DIR, GROUPLIFT_KAFKA_BROKERS (comma separated),
//	GROUPLIFT_KAFKA_TOPIC
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Tailscale: TailscaleConfig{Hostname: "grouplift", StateDir: "tsnet-state"},
		Archive: ArchiveConfig{
			SpoolDir:     "spool",
			PollInterval: 5 * time.Second,
			BatchSize:    20,
			MaxAttempts:  10,
			BaseBackoff:  time.Second,
			MaxBackoff:   10 * time.Minute,
		},
		Kafka:    KafkaConfig{Topic: "grouplift.sessions"},
		Live:     LiveConfig{MaxConns: 500, Buffer: 16},
		Sessions: SessionsConfig{CodeLength: 6, MaxIDAttempts: 32},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GROUPLIFT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GROUPLIFT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GROUPLIFT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("GROUPLIFT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("GROUPLIFT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("GROUPLIFT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("GROUPLIFT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("GROUPLIFT_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("GROUPLIFT_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("GROUPLIFT_TAILSCALE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("GROUPLIFT_ARCHIVE_SPOOL_DIR"); v != "" {
		cfg.Archive.SpoolDir = v
	}
	if v := os.Getenv("GROUPLIFT_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("GROUPLIFT_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Archive.SpoolDir == "" {
		return fmt.Errorf("archive.spool_dir is required")
	}
	if c.Archive.MaxAttempts < 1 {
		return fmt.Errorf("archive.max_attempts must be at least 1")
	}
	if c.Archive.BaseBackoff <= 0 || c.Archive.MaxBackoff < c.Archive.BaseBackoff {
		return fmt.Errorf("archive backoff must satisfy 0 < base_backoff <= max_backoff")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	if c.Sessions.CodeLength < 4 || c.Sessions.CodeLength > 9 {
		return fmt.Errorf("sessions.code_length must be between 4 and 9")
	}
	if c.Sessions.MaxIDAttempts < 1 {
		return fmt.Errorf("sessions.max_id_attempts must be at least 1")
	}
	return nil
}
