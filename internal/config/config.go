// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-capsule.
//
// go-capsule is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "24h"
// as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete capsule service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Release   ReleaseConfig   `yaml:"release"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig controls owner/scheduler endpoint authentication
type AuthConfig struct {
	Enabled bool       `yaml:"enabled"`
	JWT     *JWTConfig `yaml:"jwt,omitempty"`
}

// JWTConfig controls JWT bearer authentication
type JWTConfig struct {
	Secret   string   `yaml:"secret"`
	Issuer   string   `yaml:"issuer"`
	Audience []string `yaml:"audience"`
}

// TokensConfig controls the scoped recipient token issuer
type TokensConfig struct {
	Key    string   `yaml:"key"`
	Window Duration `yaml:"window"`
}

// ReleaseConfig controls the release state machine
type ReleaseConfig struct {
	PasswordLength int `yaml:"password_length"`

	// Grace is the window between the first deposited share and the
	// first release attempt, giving owners time to abort.
	Grace Duration `yaml:"grace"`

	// Combiner selects the share recombination strategy: "shamir" runs
	// in-process, "exec" shells out to an external binary.
	Combiner    string   `yaml:"combiner"`
	Threshold   int      `yaml:"threshold"`
	ExecPath    string   `yaml:"exec_path"`
	ExecTimeout Duration `yaml:"exec_timeout"`
}

// ScheduleConfig controls the scheduled pass thresholds
type ScheduleConfig struct {
	InvitationGrace Duration `yaml:"invitation_grace"`
	HintInactivity  Duration `yaml:"hint_inactivity"`
	RemindInterval  Duration `yaml:"remind_interval"`
}

// StorageConfig controls the persistence backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, file
	Path    string `yaml:"path"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RateLimitConfig throttles the anonymous deposit and secret endpoints
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Default returns a configuration with sensible development defaults.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "localhost", Port: 8443},
		Logging: LoggingConfig{Level: "info"},
		Release: ReleaseConfig{
			PasswordLength: 16,
			Grace:          Duration(3 * 24 * time.Hour),
			Combiner:       "shamir",
			Threshold:      2,
			ExecTimeout:    Duration(30 * time.Second),
		},
		Schedule: ScheduleConfig{
			InvitationGrace: Duration(24 * time.Hour),
			HintInactivity:  Duration(14 * 24 * time.Hour),
			RemindInterval:  Duration(30 * 24 * time.Hour),
		},
		Storage: StorageConfig{Backend: "memory"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			Burst:             10,
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable
// overrides. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("CAPSULE_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("CAPSULE_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid CAPSULE_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid CAPSULE_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}
	if level := os.Getenv("CAPSULE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if key := os.Getenv("CAPSULE_TOKEN_KEY"); key != "" {
		cfg.Tokens.Key = key
	}
	if secret := os.Getenv("CAPSULE_JWT_SECRET"); secret != "" {
		if cfg.Auth.JWT == nil {
			cfg.Auth.JWT = &JWTConfig{}
		}
		cfg.Auth.JWT.Secret = secret
	}
	if dataDir := os.Getenv("CAPSULE_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if c.Auth.Enabled {
		if c.Auth.JWT == nil || c.Auth.JWT.Secret == "" {
			return fmt.Errorf("auth jwt secret is required when auth is enabled")
		}
	}

	if c.Tokens.Key == "" {
		return fmt.Errorf("tokens key must be specified")
	}
	if c.Tokens.Window < 0 {
		return fmt.Errorf("tokens window cannot be negative")
	}

	if c.Release.PasswordLength < 1 {
		return fmt.Errorf("release password_length must be positive")
	}
	if c.Release.Grace < 0 {
		return fmt.Errorf("release grace cannot be negative")
	}
	switch c.Release.Combiner {
	case "shamir":
		if c.Release.Threshold < 2 {
			return fmt.Errorf("release threshold must be at least 2 for the shamir combiner")
		}
	case "exec":
		if c.Release.ExecPath == "" {
			return fmt.Errorf("release exec_path is required for the exec combiner")
		}
	default:
		return fmt.Errorf("invalid release combiner: %s (must be shamir or exec)", c.Release.Combiner)
	}

	if c.Schedule.InvitationGrace < 0 || c.Schedule.HintInactivity < 0 || c.Schedule.RemindInterval < 0 {
		return fmt.Errorf("schedule intervals cannot be negative")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limit requests_per_minute must be positive when enabled")
	}

	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or file)", c.Storage.Backend)
	}

	return nil
}
