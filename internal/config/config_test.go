package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultImportConfig(t *testing.T) {
	cfg := DefaultImportConfig()
	assert.False(t, cfg.CreateMissingArtists)
	assert.Equal(t, 0.85, cfg.MergeConfidenceThreshold)
	assert.Equal(t, 0.95, cfg.ArtistMatchThreshold)
	assert.Equal(t, SpatialThresholds{High: 10, Medium: 50, Low: 100}, cfg.SpatialThresholds)
	assert.Equal(t, 60, cfg.BatchTimeoutSeconds)
	require.NoError(t, cfg.Validate())
}

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	cfg := ImportConfig{CreateMissingArtists: true}.ApplyDefaults()
	assert.True(t, cfg.CreateMissingArtists)
	assert.Equal(t, 0.85, cfg.MergeConfidenceThreshold)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestApplyDefaults_KeepsOverrides(t *testing.T) {
	cfg := ImportConfig{
		MergeConfidenceThreshold: 0.7,
		Concurrency:              8,
	}.ApplyDefaults()
	assert.Equal(t, 0.7, cfg.MergeConfidenceThreshold)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, SpatialThresholds{High: 10, Medium: 50, Low: 100}, cfg.SpatialThresholds)
}

func TestValidate_BadThreshold(t *testing.T) {
	cfg := DefaultImportConfig()
	cfg.MergeConfidenceThreshold = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge_confidence_threshold")
}

func TestValidate_BadTierOrdering(t *testing.T) {
	cfg := DefaultImportConfig()
	cfg.SpatialThresholds = SpatialThresholds{High: 100, Medium: 50, Low: 10}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spatial_thresholds")
}

func TestValidate_NegativeWeight(t *testing.T) {
	cfg := DefaultImportConfig()
	cfg.Weights.Title = -0.1
	require.Error(t, cfg.Validate())
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 0.85, cfg.Import.MergeConfidenceThreshold)
	assert.Equal(t, "info", cfg.Log.Level)
}
