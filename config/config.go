// kerimesh - KERI identity and group-chat consensus engine
// Copyright (C) 2025 kerimesh contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads and validates kerimesh's runtime configuration: the
// KV backend to bind the KERI store, group engine and challenge
// authenticator to, plus logging and metrics settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure, loaded from YAML or
// JSON and overridable by environment variables (see env.go).
type Config struct {
	Environment string          `yaml:"environment" json:"environment"`
	Storage     StorageConfig   `yaml:"storage" json:"storage"`
	Identity    IdentityConfig  `yaml:"identity" json:"identity"`
	Group       GroupConfig     `yaml:"group" json:"group"`
	Challenge   ChallengeConfig `yaml:"challenge" json:"challenge"`
	Logging     LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// StorageConfig selects and configures the pkg/kv.Backend every component
// is bound to.
type StorageConfig struct {
	// Type is one of "memory", "disk", "pebble", "postgres".
	Type string `yaml:"type" json:"type"`
	// Path is the root directory for "disk" and "pebble".
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// DSN is the connection string for "postgres".
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// IdentityConfig configures the default signing-key algorithm new
// accounts are created with.
type IdentityConfig struct {
	DefaultKeyType string `yaml:"default_key_type" json:"default_key_type"`
}

// GroupConfig configures the defaults new groups are created with and the
// sync strategy's timeout/retry behaviour.
type GroupConfig struct {
	DefaultQuorumThreshold   float64       `yaml:"default_quorum_threshold" json:"default_quorum_threshold"`
	DefaultAllowMemberInvite bool          `yaml:"default_allow_member_invite" json:"default_allow_member_invite"`
	SyncTimeout              time.Duration `yaml:"sync_timeout" json:"sync_timeout"`
	SyncRetries              int           `yaml:"sync_retries" json:"sync_retries"`
	SyncCooldown             time.Duration `yaml:"sync_cooldown" json:"sync_cooldown"`
}

// ChallengeConfig configures the challenge authenticator's default TTL.
type ChallengeConfig struct {
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// LoggingConfig configures internal/logger's default logger.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path,omitempty" json:"file_path,omitempty"`
}

// MetricsConfig configures the Prometheus metrics server internal/metrics
// exposes.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile loads configuration from path, trying YAML first and
// falling back to JSON, then applies defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("config: parse %s (tried YAML and JSON): %w", path, err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg to path, choosing JSON or YAML by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// setDefaults fills in the zero-value fields every deployment needs a
// sane value for.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = ".kerimesh/data"
	}
	if cfg.Identity.DefaultKeyType == "" {
		cfg.Identity.DefaultKeyType = "Ed25519"
	}
	if cfg.Group.DefaultQuorumThreshold == 0 {
		cfg.Group.DefaultQuorumThreshold = 0.5
	}
	if cfg.Group.SyncTimeout == 0 {
		cfg.Group.SyncTimeout = 5 * time.Second
	}
	if cfg.Group.SyncRetries == 0 {
		cfg.Group.SyncRetries = 2
	}
	if cfg.Group.SyncCooldown == 0 {
		cfg.Group.SyncCooldown = 10 * time.Second
	}
	if cfg.Challenge.TTL == 0 {
		cfg.Challenge.TTL = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}
