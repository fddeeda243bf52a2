package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func hasError(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field && e.Level == "error" {
			return true
		}
	}
	return false
}

func TestValidateConfiguration_DefaultsAreValid(t *testing.T) {
	errs := ValidateConfiguration(validConfig())
	for _, e := range errs {
		assert.NotEqual(t, "error", e.Level, "%s: %s", e.Field, e.Message)
	}
}

func TestValidateConfiguration_UnknownStorageType(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "bogus"
	assert.True(t, hasError(ValidateConfiguration(cfg), "Storage.Type"))
}

func TestValidateConfiguration_PostgresRequiresDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "postgres"
	cfg.Storage.DSN = ""
	assert.True(t, hasError(ValidateConfiguration(cfg), "Storage.DSN"))
}

func TestValidateConfiguration_QuorumThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Group.DefaultQuorumThreshold = 1.5
	assert.True(t, hasError(ValidateConfiguration(cfg), "Group.DefaultQuorumThreshold"))
}

func TestValidateConfiguration_NonPositiveChallengeTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Challenge.TTL = 0
	assert.True(t, hasError(ValidateConfiguration(cfg), "Challenge.TTL"))
}
