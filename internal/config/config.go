// Package config loads tempodb settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Document store backends.
const (
	DocumentStoreSQLite = "sqlite"
	DocumentStoreBolt   = "bolt"
)

// Config is the tempodb configuration file.
type Config struct {
	// Database is the SQLite file holding the transaction log (and document
	// bodies with the sqlite backend).
	Database string `yaml:"database"`

	// DocumentStore selects where document bodies live: sqlite or bolt.
	DocumentStore string `yaml:"document_store"`
	BoltPath      string `yaml:"bolt_path"`

	// AwaitTimeout bounds waits for indexing.
	AwaitTimeout time.Duration `yaml:"await_timeout"`

	LogLevel string `yaml:"log_level"`

	// MetricsAddr, when set, serves Prometheus metrics at /metrics.
	MetricsAddr string `yaml:"metrics_addr"`
}

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("TEMPODB_LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

// NewDefaultConfig returns the configuration used when no file is given.
func NewDefaultConfig() *Config {
	return &Config{
		Database:      "./tempodb.db",
		DocumentStore: DocumentStoreSQLite,
		AwaitTimeout:  10 * time.Second,
		LogLevel:      getLogLevel(),
	}
}

// Load reads the YAML file at path over the defaults. A missing file is an
// error; an empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping fields the document leaves unset,
// and validates the result.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database must be set")
	}
	switch c.DocumentStore {
	case DocumentStoreSQLite:
	case DocumentStoreBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("bolt_path must be set when document_store is %q", DocumentStoreBolt)
		}
	default:
		return fmt.Errorf("unknown document_store %q (want %q or %q)", c.DocumentStore, DocumentStoreSQLite, DocumentStoreBolt)
	}
	if c.AwaitTimeout <= 0 {
		return fmt.Errorf("await_timeout must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel (debug, info, warn, error).
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
