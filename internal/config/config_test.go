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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9090
logging:
  level: debug
tokens:
  key: token-signing-key
  window: 2h
release:
  password_length: 20
  grace: 48h
  combiner: exec
  exec_path: /usr/local/bin/combine
  exec_timeout: 45s
schedule:
  invitation_grace: 48h
  hint_inactivity: 168h
storage:
  backend: file
  path: /var/lib/capsule
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Hour, cfg.Tokens.Window.Std())
	assert.Equal(t, 20, cfg.Release.PasswordLength)
	assert.Equal(t, 48*time.Hour, cfg.Release.Grace.Std())
	assert.Equal(t, "exec", cfg.Release.Combiner)
	assert.Equal(t, 45*time.Second, cfg.Release.ExecTimeout.Std())
	assert.Equal(t, 48*time.Hour, cfg.Schedule.InvitationGrace.Std())
	assert.Equal(t, 7*24*time.Hour, cfg.Schedule.HintInactivity.Std())
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 30*24*time.Hour, cfg.Schedule.RemindInterval.Std())
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.True(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAPSULE_HOST", "capsule.internal")
	t.Setenv("CAPSULE_PORT", "7070")
	t.Setenv("CAPSULE_TOKEN_KEY", "env-key")
	t.Setenv("CAPSULE_JWT_SECRET", "env-secret")

	path := writeConfig(t, `
tokens:
  key: file-key
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "capsule.internal", cfg.Server.Host)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Tokens.Key)
	require.NotNil(t, cfg.Auth.JWT)
	assert.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
}

func TestEnvOverrideInvalidPort(t *testing.T) {
	t.Setenv("CAPSULE_PORT", "not-a-port")

	path := writeConfig(t, `
tokens:
  key: k
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8443, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Tokens.Key = "k"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
		{"missing token key", func(c *Config) { c.Tokens.Key = "" }},
		{"zero password length", func(c *Config) { c.Release.PasswordLength = 0 }},
		{"negative release grace", func(c *Config) { c.Release.Grace = Duration(-time.Hour) }},
		{"bad combiner", func(c *Config) { c.Release.Combiner = "magic" }},
		{"shamir threshold too low", func(c *Config) { c.Release.Threshold = 1 }},
		{"exec without path", func(c *Config) {
			c.Release.Combiner = "exec"
			c.Release.ExecPath = ""
		}},
		{"file backend without path", func(c *Config) {
			c.Storage.Backend = "file"
			c.Storage.Path = ""
		}},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"rate limit without rate", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RequestsPerMinute = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid().Validate())
}

func TestDurationUnmarshalForms(t *testing.T) {
	path := writeConfig(t, `
tokens:
  key: k
  window: 3600000000000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Tokens.Window.Std())
}
