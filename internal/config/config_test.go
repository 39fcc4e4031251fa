package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withAPIKey(t *testing.T, key string) {
	t.Helper()
	t.Setenv("PRIMARY_MODEL_API_KEY", key)
}

func TestLoadMissingFileReturnsDefaultsPlusEnv(t *testing.T) {
	withAPIKey(t, "secret")
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, DefaultConfig().Model.PrimaryName, cfg.Model.PrimaryName)
}

func TestLoadMissingAPIKeyIsConfigError(t *testing.T) {
	t.Setenv("PRIMARY_MODEL_API_KEY", "")
	_, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config error")
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	withAPIKey(t, "secret")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Model.PrimaryName = "custom-model"
	cfg.Context.Mode = "dynamic"
	require.NoError(t, Save(path, cfg))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", reloaded.Model.PrimaryName)
	assert.Equal(t, "dynamic", reloaded.Context.Mode)
}

func TestEnvOverridesModelNames(t *testing.T) {
	withAPIKey(t, "secret")
	t.Setenv("KAI_PRIMARY_MODEL", "env-model")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Model.PrimaryName)
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Context.Mode = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestLoadUnreadableYAMLIsParseError(t *testing.T) {
	withAPIKey(t, "secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}
