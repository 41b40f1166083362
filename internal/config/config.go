// Package config loads service configuration from an optional YAML file
// overlaid with FARUM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const (
	BackendMemory    = "memory"
	BackendNATS      = "nats"
	BackendFirestore = "firestore"
)

const envPrefix = "FARUM_"

type Config struct {
	Mode Mode   `koanf:"mode"`
	Port string `koanf:"port"`

	GCPProjectID string `koanf:"gcp_project"`

	DraftBackend  string `koanf:"draft_backend"`  // "memory", "nats" or "firestore"
	RecordBackend string `koanf:"record_backend"` // "memory" or "firestore"

	NATSURL    string `koanf:"nats_url"`
	NATSBucket string `koanf:"nats_bucket"`

	TemplatesDir  string        `koanf:"templates_dir"`
	LogLevel      string        `koanf:"log_level"`
	DefaultUser   string        `koanf:"default_user"`
	InsertTimeout time.Duration `koanf:"insert_timeout"`
}

// Load reads the YAML file at path (skipped when path is empty), then
// FARUM_* environment variables, then fills defaults.
//
//	FARUM_DRAFT_BACKEND -> draft_backend
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeLocal
	}
	if cfg.Port == "" {
		// Cloud Run injects PORT
		cfg.Port = os.Getenv("PORT")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.DraftBackend == "" {
		cfg.DraftBackend = BackendMemory
	}
	if cfg.RecordBackend == "" {
		cfg.RecordBackend = BackendMemory
	}
	if cfg.NATSURL == "" {
		cfg.NATSURL = "nats://127.0.0.1:4222"
	}
	if cfg.NATSBucket == "" {
		cfg.NATSBucket = "farum_drafts"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = 15 * time.Second
	}
	if cfg.Mode == ModeLocal && cfg.DefaultUser == "" {
		cfg.DefaultUser = "local-user"
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeLocal, ModeGCP:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeLocal, ModeGCP, c.Mode))
	}

	switch c.DraftBackend {
	case BackendMemory, BackendNATS, BackendFirestore:
	default:
		errs = append(errs, fmt.Errorf("draft_backend must be memory, nats or firestore, got %q", c.DraftBackend))
	}

	switch c.RecordBackend {
	case BackendMemory, BackendFirestore:
	default:
		errs = append(errs, fmt.Errorf("record_backend must be memory or firestore, got %q", c.RecordBackend))
	}

	if c.usesFirestore() && c.GCPProjectID == "" {
		errs = append(errs, errors.New("gcp_project must be set when a firestore backend is selected"))
	}
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		errs = append(errs, errors.New("gcp_project must be set in gcp mode"))
	}

	return errors.Join(errs...)
}

func (c *Config) usesFirestore() bool {
	return c.DraftBackend == BackendFirestore || c.RecordBackend == BackendFirestore
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
