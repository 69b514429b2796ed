// Package prediction turns feature rows into classification labels.
//
// Two strategies exist: a model strategy backed by a loaded scaler and
// classifier, and a random strategy used when those artifacts are absent.
// The strategy is chosen once, by Select, when the process starts.
package prediction

import (
	"context"
	"fmt"

	"github.com/okian/celestial/internal/domain/model"
)

// Strategy names reported by predictors.
const (
	StrategyModel  = "model"
	StrategyRandom = "random"
)

// Predictor assigns one label per row.
type Predictor interface {
	// Predict returns exactly len(rows) labels, honoring ctx for cancellation.
	Predict(ctx context.Context, rows []model.Row) ([]model.Label, error)
	// Strategy names the active strategy.
	Strategy() string
}

// Scaler transforms raw feature vectors before classification.
type Scaler interface {
	Transform(x [][]float64) ([][]float64, error)
}

// Classifier maps scaled feature vectors to class indices.
type Classifier interface {
	Predict(x [][]float64) ([]int, error)
}

// Select returns a ModelPredictor when both artifacts are present and a
// RandomPredictor otherwise.
func Select(clf Classifier, scaler Scaler, opts ...Option) Predictor {
	if clf != nil && scaler != nil {
		return NewModelPredictor(clf, scaler)
	}
	return NewRandomPredictor(opts...)
}

// ModelPredictor scales rows and classifies them with a trained model.
type ModelPredictor struct {
	clf    Classifier
	scaler Scaler
}

// NewModelPredictor creates a predictor over the given artifacts.
func NewModelPredictor(clf Classifier, scaler Scaler) *ModelPredictor {
	return &ModelPredictor{clf: clf, scaler: scaler}
}

// Strategy implements Predictor.
func (p *ModelPredictor) Strategy() string { return StrategyModel }

// Predict implements Predictor.
func (p *ModelPredictor) Predict(ctx context.Context, rows []model.Row) ([]model.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if len(rows) == 0 {
		return []model.Label{}, nil
	}

	x := make([][]float64, len(rows))
	for i, r := range rows {
		x[i] = r.Vector()
	}

	scaled, err := p.scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScale, err)
	}
	classes, err := p.clf.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassify, err)
	}
	if len(classes) != len(rows) {
		return nil, fmt.Errorf("%w: got %d classes for %d rows", ErrClassify, len(classes), len(rows))
	}

	labels := make([]model.Label, len(classes))
	for i, c := range classes {
		labels[i] = model.LabelFromClass(c)
	}
	return labels, nil
}
