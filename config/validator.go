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

package config

import "fmt"

// ValidationError is a single configuration problem. Level distinguishes
// a hard failure ("error") from something merely worth flagging
// ("warning").
type ValidationError struct {
	Field   string
	Message string
	Level   string
}

// ValidateConfiguration validates cfg, returning every problem found. Load
// only fails the load on "error"-level entries; it neither returns nor
// logs "warning" entries.
func ValidateConfiguration(cfg *Config) []ValidationError {
	var errs []ValidationError

	switch cfg.Storage.Type {
	case "memory", "disk", "pebble", "postgres":
	default:
		errs = append(errs, ValidationError{
			Field: "Storage.Type", Level: "error",
			Message: fmt.Sprintf("unknown storage backend %q (want memory, disk, pebble, or postgres)", cfg.Storage.Type),
		})
	}
	if cfg.Storage.Type == "postgres" && cfg.Storage.DSN == "" {
		errs = append(errs, ValidationError{Field: "Storage.DSN", Level: "error", Message: "postgres storage requires a DSN"})
	}
	if (cfg.Storage.Type == "disk" || cfg.Storage.Type == "pebble") && cfg.Storage.Path == "" {
		errs = append(errs, ValidationError{Field: "Storage.Path", Level: "error", Message: "disk/pebble storage requires a path"})
	}

	switch cfg.Identity.DefaultKeyType {
	case "Ed25519", "Secp256k1":
	default:
		errs = append(errs, ValidationError{
			Field: "Identity.DefaultKeyType", Level: "error",
			Message: fmt.Sprintf("unknown key type %q (want Ed25519 or Secp256k1)", cfg.Identity.DefaultKeyType),
		})
	}

	if cfg.Group.DefaultQuorumThreshold <= 0 || cfg.Group.DefaultQuorumThreshold > 1 {
		errs = append(errs, ValidationError{
			Field: "Group.DefaultQuorumThreshold", Level: "error",
			Message: "must be in (0, 1]",
		})
	}
	if cfg.Group.SyncTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "Group.SyncTimeout", Level: "warning", Message: "non-positive sync timeout disables the sync race's deadline"})
	}

	if cfg.Challenge.TTL <= 0 {
		errs = append(errs, ValidationError{Field: "Challenge.TTL", Level: "error", Message: "must be positive"})
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field: "Logging.Level", Level: "warning",
			Message: fmt.Sprintf("unrecognised log level %q", cfg.Logging.Level),
		})
	}

	return errs
}
