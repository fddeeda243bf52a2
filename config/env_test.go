package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("KERIMESH_TEST_VAR", "hello")
	assert.Equal(t, "hello", SubstituteEnvVars("${KERIMESH_TEST_VAR}"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${KERIMESH_UNSET_VAR:fallback}"))
	assert.Equal(t, "", SubstituteEnvVars("${KERIMESH_UNSET_VAR}"))
	assert.Equal(t, "plain", SubstituteEnvVars("plain"))
}

func TestGetEnvironment(t *testing.T) {
	os.Unsetenv("KERIMESH_ENV")
	os.Unsetenv("ENVIRONMENT")
	assert.Equal(t, "development", GetEnvironment())

	t.Setenv("ENVIRONMENT", "Production")
	assert.Equal(t, "production", GetEnvironment())

	t.Setenv("KERIMESH_ENV", "Staging")
	assert.Equal(t, "staging", GetEnvironment())
}

func TestIsProductionIsDevelopment(t *testing.T) {
	t.Setenv("KERIMESH_ENV", "production")
	assert.True(t, IsProduction())
	assert.False(t, IsDevelopment())

	t.Setenv("KERIMESH_ENV", "local")
	assert.False(t, IsProduction())
	assert.True(t, IsDevelopment())
}
