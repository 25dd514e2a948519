// Package config loads application configuration from a yaml file and
// environment variables, and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Import ImportConfig `yaml:"import" mapstructure:"import"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver                  string  `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL             string  `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath              string  `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	SpatialQueriesPerSecond float64 `yaml:"spatial_queries_per_second" mapstructure:"spatial_queries_per_second"`
}

// SpatialThresholds are the candidate distance tiers in meters. Artworks
// beyond Low are never merge candidates.
type SpatialThresholds struct {
	High   float64 `yaml:"high" mapstructure:"high"`
	Medium float64 `yaml:"medium" mapstructure:"medium"`
	Low    float64 `yaml:"low" mapstructure:"low"`
}

// Weights scale the non-identifier scoring signals.
type Weights struct {
	Distance float64 `yaml:"distance" mapstructure:"distance"` // contribution at the high tier
	Title    float64 `yaml:"title" mapstructure:"title"`       // multiplied by title similarity
	Artist   float64 `yaml:"artist" mapstructure:"artist"`     // per shared artist, capped at twice this
}

// ImportConfig controls one batch run. Defaults are applied once at the
// batch entry point, never inside the pipeline.
type ImportConfig struct {
	CreateMissingArtists     bool              `yaml:"create_missing_artists" mapstructure:"create_missing_artists"`
	MergeConfidenceThreshold float64           `yaml:"merge_confidence_threshold" mapstructure:"merge_confidence_threshold"`
	ArtistMatchThreshold     float64           `yaml:"artist_match_threshold" mapstructure:"artist_match_threshold"`
	SpatialThresholds        SpatialThresholds `yaml:"spatial_thresholds" mapstructure:"spatial_thresholds"`
	Weights                  Weights           `yaml:"weights" mapstructure:"weights"`
	BatchTimeoutSeconds      int               `yaml:"batch_timeout_seconds" mapstructure:"batch_timeout_seconds"`
	Concurrency              int               `yaml:"concurrency" mapstructure:"concurrency"`
	MaxCandidates            int               `yaml:"max_candidates" mapstructure:"max_candidates"`
	RequireCoordinates       bool              `yaml:"require_coordinates" mapstructure:"require_coordinates"`
	DefaultSource            string            `yaml:"default_source" mapstructure:"default_source"`

	// AmbiguityMargin flags records whose top two candidates score within
	// this margin of each other at or above the merge threshold. Zero
	// disables ambiguity flagging.
	AmbiguityMargin float64 `yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "json" or "console"
}

// DefaultImportConfig returns the documented batch defaults.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		CreateMissingArtists:     false,
		MergeConfidenceThreshold: 0.85,
		ArtistMatchThreshold:     0.95,
		SpatialThresholds:        SpatialThresholds{High: 10, Medium: 50, Low: 100},
		Weights:                  Weights{Distance: 0.6, Title: 0.3, Artist: 0.2},
		BatchTimeoutSeconds:      60,
		Concurrency:              4,
		MaxCandidates:            25,
		RequireCoordinates:       true,
	}
}

// ApplyDefaults fills zero-valued knobs with the documented defaults.
// Boolean flags keep their explicit values.
func (c ImportConfig) ApplyDefaults() ImportConfig {
	def := DefaultImportConfig()
	if c.MergeConfidenceThreshold == 0 {
		c.MergeConfidenceThreshold = def.MergeConfidenceThreshold
	}
	if c.ArtistMatchThreshold == 0 {
		c.ArtistMatchThreshold = def.ArtistMatchThreshold
	}
	if c.SpatialThresholds == (SpatialThresholds{}) {
		c.SpatialThresholds = def.SpatialThresholds
	}
	if c.Weights == (Weights{}) {
		c.Weights = def.Weights
	}
	if c.BatchTimeoutSeconds == 0 {
		c.BatchTimeoutSeconds = def.BatchTimeoutSeconds
	}
	if c.Concurrency == 0 {
		c.Concurrency = def.Concurrency
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = def.MaxCandidates
	}
	return c
}

// Validate checks that an ImportConfig is internally consistent.
func (c ImportConfig) Validate() error {
	var errs []string
	if c.MergeConfidenceThreshold <= 0 || c.MergeConfidenceThreshold > 1 {
		errs = append(errs, "merge_confidence_threshold must be in (0, 1]")
	}
	if c.ArtistMatchThreshold <= 0 || c.ArtistMatchThreshold > 1 {
		errs = append(errs, "artist_match_threshold must be in (0, 1]")
	}
	if c.SpatialThresholds.High <= 0 ||
		c.SpatialThresholds.Medium < c.SpatialThresholds.High ||
		c.SpatialThresholds.Low < c.SpatialThresholds.Medium {
		errs = append(errs, "spatial_thresholds must satisfy 0 < high <= medium <= low")
	}
	if c.Weights.Distance < 0 || c.Weights.Title < 0 || c.Weights.Artist < 0 {
		errs = append(errs, "weights must be >= 0")
	}
	if c.Concurrency < 1 {
		errs = append(errs, "concurrency must be >= 1")
	}
	if c.AmbiguityMargin < 0 {
		errs = append(errs, "ambiguity_margin must be >= 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: import validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from ./config.yaml and ARTATLAS_* environment
// variables. A missing config file is fine; defaults apply.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ARTATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "artatlas.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("import.merge_confidence_threshold", 0.85)
	v.SetDefault("import.artist_match_threshold", 0.95)
	v.SetDefault("import.spatial_thresholds.high", 10)
	v.SetDefault("import.spatial_thresholds.medium", 50)
	v.SetDefault("import.spatial_thresholds.low", 100)
	v.SetDefault("import.weights.distance", 0.6)
	v.SetDefault("import.weights.title", 0.3)
	v.SetDefault("import.weights.artist", 0.2)
	v.SetDefault("import.batch_timeout_seconds", 60)
	v.SetDefault("import.concurrency", 4)
	v.SetDefault("import.max_candidates", 25)
	v.SetDefault("import.require_coordinates", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
