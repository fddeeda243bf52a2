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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kerimesh/kerimesh/config"
	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/node"
)

// loadConfig reads the config file named by the --config flag, if any,
// falling back to environment-variable-driven defaults otherwise.
func loadConfig() (*config.Config, error) {
	opts := config.DefaultLoaderOptions()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: stat %s: %w", configPath, err)
		}
		if fi.IsDir() {
			opts.ConfigDir = configPath
		} else {
			cfg, err := config.LoadFromFile(configPath)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		}
	}
	return config.Load(opts)
}

// newConfiguredLogger builds the logger every subcommand shares, at the
// level named by cfg.Logging.Level.
func newConfiguredLogger(cfg *config.Config) *logger.StructuredLogger {
	return logger.NewLogger(os.Stderr, logger.ParseLevel(cfg.Logging.Level))
}

// openNode loads configuration, opens the configured backend, and wires a
// node.Node over it. The caller must Close the returned node.
func openNode(ctx context.Context) (*node.Node, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	backend, err := cfg.OpenBackend(ctx)
	if err != nil {
		return nil, err
	}

	return node.New(node.Options{
		Backend: backend,
		Log:     newConfiguredLogger(cfg),
	}), nil
}
