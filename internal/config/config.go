// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers an optional YAML file and CELESTIAL_* env vars on top.
// - Failures are wrapped with this package's sentinel errors.
package config

import (
	"math"
	"runtime"
)

// Visual control bounds. Values outside are clamped, not rejected.
const (
	MinOrbitSpeed     = 0.2
	MaxOrbitSpeed     = 3.0
	MinStarBrightness = 0.05
	MaxStarBrightness = 0.8

	DefaultOrbitSpeed     = 1.0
	DefaultStarBrightness = 0.25
)

const defaultMaxUploadBytes = 32 << 20

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ModelPath and ScalerPath locate the pre-trained artifacts.
	ModelPath  string `koanf:"model_path"`
	ScalerPath string `koanf:"scaler_path"`

	// RandomSeed seeds the fallback predictor; 0 seeds from the clock.
	RandomSeed uint64 `koanf:"random_seed"`

	// WorkerCount sets the number of classification workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory chunk queue.
	QueueSize int `koanf:"queue_size"`

	// ChunkSize is the number of rows per classification job.
	ChunkSize int `koanf:"chunk_size"`

	// PreviewRows caps the rows shown on the result page.
	PreviewRows int `koanf:"preview_rows"`

	// MaxUploadBytes caps request bodies carrying CSV data.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// ResultsCapacity and UploadsCapacity bound the in-memory stores.
	ResultsCapacity int `koanf:"results_capacity"`
	UploadsCapacity int `koanf:"uploads_capacity"`

	// Defaults for the decorative background controls.
	OrbitSpeed     float64 `koanf:"orbit_speed"`
	StarBrightness float64 `koanf:"star_brightness"`
	ShowTrails     bool    `koanf:"show_trails"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		ModelPath:       "exoplanet_model.json",
		ScalerPath:      "scaler.json",
		WorkerCount:     runtime.NumCPU(),
		QueueSize:       1024,
		ChunkSize:       512,
		PreviewRows:     50,
		MaxUploadBytes:  defaultMaxUploadBytes,
		ResultsCapacity: 64,
		UploadsCapacity: 64,
		OrbitSpeed:      DefaultOrbitSpeed,
		StarBrightness:  DefaultStarBrightness,
		ShowTrails:      true,
	}
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive")
	case c.QueueSize <= 0:
		return invalid("queue_size must be positive")
	case c.ChunkSize <= 0:
		return invalid("chunk_size must be positive")
	case c.PreviewRows <= 0:
		return invalid("preview_rows must be positive")
	case c.MaxUploadBytes <= 0:
		return invalid("max_upload_bytes must be positive")
	case c.ResultsCapacity <= 0 || c.UploadsCapacity <= 0:
		return invalid("store capacities must be positive")
	}
	c.OrbitSpeed = ClampOrbitSpeed(c.OrbitSpeed)
	c.StarBrightness = ClampStarBrightness(c.StarBrightness)
	return nil
}

// ClampOrbitSpeed limits v to the orbit speed control range.
func ClampOrbitSpeed(v float64) float64 {
	return clamp(v, MinOrbitSpeed, MaxOrbitSpeed)
}

// ClampStarBrightness limits v to the star brightness control range.
func ClampStarBrightness(v float64) float64 {
	return clamp(v, MinStarBrightness, MaxStarBrightness)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return min(max(v, lo), hi)
}
