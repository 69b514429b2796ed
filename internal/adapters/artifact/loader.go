// Package artifact loads the pre-trained classifier and feature scaler from
// local files.
//
// Artifacts are JSON (.json) or YAML (.yaml, .yml) documents. A failed load
// is not fatal: callers receive an empty Bundle and fall back to the random
// prediction strategy.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/okian/celestial/pkg/logger"
	"github.com/okian/celestial/pkg/metrics"
	"gopkg.in/yaml.v3"
)

// Scaler transforms raw feature vectors.
type Scaler interface {
	Transform(x [][]float64) ([][]float64, error)
}

// Classifier maps scaled feature vectors to class indices.
type Classifier interface {
	Predict(x [][]float64) ([]int, error)
}

// Bundle holds the loaded artifacts. Both fields are nil when loading failed.
type Bundle struct {
	Classifier     Classifier
	Scaler         Scaler
	ClassifierKind string
	ScalerKind     string
}

// Loaded reports whether both artifacts are available.
func (b Bundle) Loaded() bool {
	return b.Classifier != nil && b.Scaler != nil
}

// Load reads both artifacts. On any failure it returns an empty Bundle
// together with the cause.
func Load(ctx context.Context, modelPath, scalerPath string) (Bundle, error) {
	if err := ctx.Err(); err != nil {
		return Bundle{}, err
	}

	var cf classifierFile
	if err := decodeFile(modelPath, &cf); err != nil {
		return Bundle{}, err
	}
	clf, err := cf.build()
	if err != nil {
		return Bundle{}, fmt.Errorf("%s: %w", modelPath, err)
	}

	var sf scalerFile
	if err := decodeFile(scalerPath, &sf); err != nil {
		return Bundle{}, err
	}
	sc, err := sf.build()
	if err != nil {
		return Bundle{}, fmt.Errorf("%s: %w", scalerPath, err)
	}

	scalerKind := sf.Kind
	if scalerKind == "" {
		scalerKind = ScalerStandard
	}
	return Bundle{
		Classifier:     clf,
		Scaler:         sc,
		ClassifierKind: cf.Kind,
		ScalerKind:     scalerKind,
	}, nil
}

// decodeFile decodes path into v, choosing the decoder by extension.
// Unknown fields are rejected.
func decodeFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
		}
	}
	return nil
}

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithLogger sets a custom logger for the cache.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Cache loads artifacts at most once per process. The loaded Bundle is
// immutable and shared by every caller.
type Cache struct {
	modelPath  string
	scalerPath string

	once   sync.Once
	bundle Bundle
	err    error

	logger logger.Logger
}

// NewCache creates a cache over the given artifact paths. Nothing is read
// until Get is first called.
func NewCache(modelPath, scalerPath string, opts ...Option) *Cache {
	c := &Cache{modelPath: modelPath, scalerPath: scalerPath}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("artifact")
	}
	return c
}

// Get returns the cached Bundle, loading it on first use. The load ignores
// cancellation of ctx since its outcome is kept for the process lifetime.
func (c *Cache) Get(ctx context.Context) Bundle {
	c.once.Do(func() {
		ctx := context.WithoutCancel(ctx)
		c.bundle, c.err = Load(ctx, c.modelPath, c.scalerPath)
		if c.err != nil {
			c.logger.Warn(ctx, "model artifacts unavailable; using random predictions",
				logger.String("model_path", c.modelPath),
				logger.String("scaler_path", c.scalerPath),
				logger.Error(c.err),
			)
			metrics.UpdateModelLoaded(false)
			return
		}
		c.logger.Info(ctx, "model artifacts loaded",
			logger.String("classifier", c.bundle.ClassifierKind),
			logger.String("scaler", c.bundle.ScalerKind),
		)
		metrics.UpdateModelLoaded(true)
	})
	return c.bundle
}

// Err returns why the artifacts could not be loaded, or nil. It is only
// meaningful once Get has returned.
func (c *Cache) Err() error {
	return c.err
}
