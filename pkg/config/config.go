// Package config loads probe settings from VENDORPROBE_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/fuelme/vendorprobe/engine/domain"
)

// Prefix is the environment variable prefix.
const Prefix = "VENDORPROBE"

// Search transports.
const (
	TransportREST = "rest"
	TransportGRPC = "grpc"
)

// Lookup error policies.
const (
	LookupAbort  = "abort"
	LookupReport = "report"
)

// Config holds everything a probe run needs.
type Config struct {
	OllamaURL  string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	EmbedModel string `envconfig:"EMBED_MODEL" default:"gemma-fc-test:latest"`

	QdrantURL      string `envconfig:"QDRANT_URL" default:"http://localhost:6333"`
	QdrantGRPCAddr string `envconfig:"QDRANT_GRPC" default:"localhost:6334"`
	Transport      string `envconfig:"TRANSPORT" default:"rest"`
	Collection     string `envconfig:"COLLECTION" default:"fuel-vendors"`
	Limit          int    `envconfig:"LIMIT" default:"5"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" default:"postgres://postgres@localhost:54321/fuel-me-db"`

	Query        string        `envconfig:"QUERY" default:"eco-friendly fuel delivery service for fleets"`
	LookupErrors string        `envconfig:"LOOKUP_ERRORS" default:"abort"`
	LookupRPS    float64       `envconfig:"LOOKUP_RPS" default:"0"`
	Preflight    bool          `envconfig:"PREFLIGHT" default:"false"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"0s"`

	NATSURL     string `envconfig:"NATS_URL" default:""`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"vendorprobe.reports"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads envFile (if it exists) into the environment, then parses the
// VENDORPROBE_* variables. Variables already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	return &cfg, nil
}

// Validate checks enumerations, ranges and URLs.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportREST, TransportGRPC:
	default:
		return &domain.ConfigError{Field: "Transport", Value: c.Transport}
	}
	switch c.LookupErrors {
	case LookupAbort, LookupReport:
	default:
		return &domain.ConfigError{Field: "LookupErrors", Value: c.LookupErrors}
	}
	if c.Limit < 0 {
		return &domain.ConfigError{Field: "Limit", Value: fmt.Sprint(c.Limit)}
	}
	if c.LookupRPS < 0 {
		return &domain.ConfigError{Field: "LookupRPS", Value: fmt.Sprint(c.LookupRPS)}
	}
	if c.Timeout < 0 {
		return &domain.ConfigError{Field: "Timeout", Value: c.Timeout.String()}
	}
	if strings.TrimSpace(c.Query) == "" {
		return &domain.ConfigError{Field: "Query", Value: c.Query}
	}
	if err := checkURL("OllamaURL", c.OllamaURL); err != nil {
		return err
	}
	if c.Transport == TransportREST {
		if err := checkURL("QdrantURL", c.QdrantURL); err != nil {
			return err
		}
	} else if c.QdrantGRPCAddr == "" {
		return &domain.ConfigError{Field: "QdrantGRPCAddr", Value: ""}
	}
	if c.Collection == "" {
		return &domain.ConfigError{Field: "Collection", Value: ""}
	}
	if c.PostgresDSN == "" {
		return &domain.ConfigError{Field: "PostgresDSN", Value: ""}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, &domain.ConfigError{Field: "LogLevel", Value: c.LogLevel}
	}
	return l, nil
}

// LogValue hides credentials when the config is logged.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("ollama_url", c.OllamaURL),
		slog.String("embed_model", c.EmbedModel),
		slog.String("transport", c.Transport),
		slog.String("qdrant", c.searchEndpoint()),
		slog.String("collection", c.Collection),
		slog.Int("limit", c.Limit),
		slog.String("postgres", redactDSN(c.PostgresDSN)),
		slog.String("lookup_errors", c.LookupErrors),
		slog.Bool("nats", c.NATSURL != ""),
	)
}

func (c *Config) searchEndpoint() string {
	if c.Transport == TransportGRPC {
		return c.QdrantGRPCAddr
	}
	return c.QdrantURL
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &domain.ConfigError{Field: field, Value: raw}
	}
	return nil
}

// kvPassword matches the password of a keyword/value DSN such as
// "host=db user=app password='s3 cret'".
var kvPassword = regexp.MustCompile(`(?i)(\bpassword\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return kvPassword.ReplaceAllString(dsn, "${1}xxxxx")
	}
	if u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
