package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.False(t, cfg.Debug)
	assert.Equal(t, "color", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.Equal(t, "docker.io", cfg.Registry.Default)
	assert.False(t, cfg.Fetch.RequireBootable)
	assert.False(t, cfg.Fetch.DisableGC)
}

func TestLoadOverridesFetchAndApply(t *testing.T) {
	v := viper.New()
	v.Set("fetch.require_bootable", true)
	v.Set("fetch.disable_gc", true)
	v.Set("apply.skip_sync", true)
	v.Set("registry.default", "ghcr.io")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.True(t, cfg.Fetch.RequireBootable)
	assert.True(t, cfg.Fetch.DisableGC)
	assert.True(t, cfg.Apply.SkipSync)
	assert.Equal(t, "ghcr.io", cfg.Registry.Default)
}

func TestLoadOverridesDefaults(t *testing.T) {
	v := viper.New()
	v.Set("log.level", "debug")
	v.Set("store.path", "/tmp/store")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/store", cfg.Store.Path)
}

func TestUsesLegacyVarRemap(t *testing.T) {
	old := StoreConfig{VersionHintYear: 2023, VersionHintRelease: 1}
	assert.True(t, old.UsesLegacyVarRemap())

	newer := StoreConfig{VersionHintYear: 2024, VersionHintRelease: 3}
	assert.False(t, newer.UsesLegacyVarRemap())

	noHint := StoreConfig{}
	assert.False(t, noHint.UsesLegacyVarRemap())

	retained := StoreConfig{VersionHintYear: 2020, VersionHintRelease: 1, RetainVar: true}
	assert.False(t, retained.UsesLegacyVarRemap())
}

func TestNewConfigViper(t *testing.T) {
	v := NewConfigViper()
	assert.NotNil(t, v)
}
