package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP    HTTPConfig
	Mongo   MongoConfig
	Mail    MailConfig
	Logging LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	AllowedOriginsCSV string
}

// MongoConfig describes connectivity to the ledger store.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// MailConfig controls the outbound email transport. An empty Host or an
// explicit "file" backend routes messages to the file sender used in
// development.
type MailConfig struct {
	Backend    string // smtp|file
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	OutputDir  string
	Workers    int
	MaxRetries int
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8080
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
	defaultMongoDatabase   = "coopvault"
	defaultMongoTimeout    = 10 * time.Second
	defaultSMTPPort        = 587
	defaultMailFrom        = "no-reply@example.com"
	defaultMailOutputDir   = "tmp_emails"
	defaultMailWorkers     = 2
	defaultMailMaxRetries  = 3
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host:            valueOrDefault("SERVER_HOST", defaultHost),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGO_URI"),
			Database: valueOrDefault("MONGO_DATABASE", defaultMongoDatabase),
			Timeout:  defaultMongoTimeout,
		},
		Mail: MailConfig{
			Backend:    valueOrDefault("MAIL_BACKEND", "smtp"),
			Host:       os.Getenv("SMTP_HOST"),
			Port:       parseIntWithDefault("SMTP_PORT", defaultSMTPPort),
			Username:   os.Getenv("SMTP_USER"),
			Password:   os.Getenv("SMTP_PASS"),
			From:       valueOrDefault("NOTIFY_FROM", defaultMailFrom),
			OutputDir:  valueOrDefault("MAIL_OUTPUT_DIR", defaultMailOutputDir),
			Workers:    parseIntWithDefault("MAIL_WORKERS", defaultMailWorkers),
			MaxRetries: parseIntWithDefault("MAIL_MAX_RETRIES", defaultMailMaxRetries),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
	}

	port, err := parsePort("SERVER_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	for _, entry := range []struct {
		key  string
		dest *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
		{"MONGO_TIMEOUT", &cfg.Mongo.Timeout},
	} {
		if v := os.Getenv(entry.key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", entry.key, err)
			}
			*entry.dest = d
		}
	}

	cfg.HTTP.AllowedOriginsCSV = os.Getenv("SERVER_ALLOWED_ORIGINS")

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
