// Package config loads the mailer configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/OliverSchlueter/smtp-mailer/internal/smtp"
	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

const defaultMaxAttachmentSize = "10MiB"

var (
	ErrMissingHost    = errors.New("relay host is required")
	ErrInvalidPort    = errors.New("relay port must be a number between 1 and 65535")
	ErrIncompleteDKIM = errors.New("dkim needs domain, selector and key_file")
)

// Config holds the complete application configuration.
type Config struct {
	Relay   RelayConfig   `yaml:"relay"`
	Sender  SenderConfig  `yaml:"sender"`
	DKIM    DKIMConfig    `yaml:"dkim"`
	Logging LoggingConfig `yaml:"logging"`
	Limits  LimitsConfig  `yaml:"limits"`
}

type RelayConfig struct {
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	LocalName      string        `yaml:"local_name"`
	Charset        string        `yaml:"charset"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type SenderConfig struct {
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

type DKIMConfig struct {
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	LokiURL string `yaml:"loki_url"`
}

type LimitsConfig struct {
	MaxAttachmentSize string `yaml:"max_attachment_size"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()

	return cfg, nil
}

// Validate reports the first problem that would stop the mailer from
// sending.
func (c *Config) Validate() error {
	if c.Relay.Host == "" {
		return ErrMissingHost
	}

	port, err := strconv.Atoi(c.Relay.Port)
	if err != nil || port < 1 || port > 65535 {
		return ErrInvalidPort
	}

	if c.Sender.From != "" {
		if _, err := smtp.ParseAddress(c.Sender.From); err != nil {
			return fmt.Errorf("invalid sender: %w", err)
		}
	}

	set := 0
	for _, v := range []string{c.DKIM.Domain, c.DKIM.Selector, c.DKIM.KeyFile} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return ErrIncompleteDKIM
	}

	if _, err := c.MaxAttachmentBytes(); err != nil {
		return err
	}

	return nil
}

func (c *Config) DKIMEnabled() bool {
	return c.DKIM.Domain != "" && c.DKIM.Selector != "" && c.DKIM.KeyFile != ""
}

// MaxAttachmentBytes parses the attachment limit, e.g. "512KiB" or "10m".
func (c *Config) MaxAttachmentBytes() (int64, error) {
	size, err := units.RAMInBytes(c.Limits.MaxAttachmentSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_attachment_size %q: %w", c.Limits.MaxAttachmentSize, err)
	}
	return size, nil
}

// LogLevel maps logging.level to a slog level, falling back to info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// SMTP builds the session configuration. The DKIM key is read from disk
// when signing is enabled.
func (c *Config) SMTP() (smtp.Configuration, error) {
	config := smtp.Configuration{
		Host:            c.Relay.Host,
		Port:            c.Relay.Port,
		LocalName:       c.Relay.LocalName,
		Charset:         c.Relay.Charset,
		ConnectTimeout:  c.Relay.ConnectTimeout,
		DefaultFrom:     c.Sender.From,
		DefaultFromName: c.Sender.FromName,
	}

	if c.DKIMEnabled() {
		key, err := smtp.LoadDKIMKey(c.DKIM.KeyFile)
		if err != nil {
			return smtp.Configuration{}, err
		}
		config.DKIM = &smtp.DKIMOptions{
			Domain:   c.DKIM.Domain,
			Selector: c.DKIM.Selector,
			Signer:   key,
		}
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	c.Relay.Host = "localhost"
	c.Relay.Port = smtp.DefaultPort
	c.Relay.ConnectTimeout = smtp.DefaultConnectTimeout
	c.Logging.Level = "info"
	c.Limits.MaxAttachmentSize = defaultMaxAttachmentSize
}

// applyEnvVars overrides configuration with non-empty environment variables.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.Relay.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		c.Relay.Port = v
	}
	if v := os.Getenv("SMTP_LOCAL_NAME"); v != "" {
		c.Relay.LocalName = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		c.Sender.From = v
	}
	if v := os.Getenv("SMTP_FROM_NAME"); v != "" {
		c.Sender.FromName = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOKI_URL"); v != "" {
		c.Logging.LokiURL = v
	}
}
