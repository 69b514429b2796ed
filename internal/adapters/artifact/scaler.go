package artifact

import (
	"fmt"

	"github.com/okian/celestial/internal/domain/model"
)

// Scaler kinds understood by the loader.
const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
)

// scalerFile is the on-disk scaler layout.
type scalerFile struct {
	Kind     string    `json:"kind" yaml:"kind"`
	Features []string  `json:"features,omitempty" yaml:"features,omitempty"`
	Mean     []float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Scale    []float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
	Min      []float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max      []float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// StandardScaler centers each feature on its training mean and divides by
// its training scale.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Transform implements Scaler. Zero-scale features map to 0.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrDimension, i, len(row), len(s.Mean))
		}
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if s.Scale[j] != 0 {
				out[i][j] = (v - s.Mean[j]) / s.Scale[j]
			}
		}
	}
	return out, nil
}

// MinMaxScaler maps each feature onto [0, 1] using training bounds.
type MinMaxScaler struct {
	Min []float64
	Max []float64
}

// Transform implements Scaler. Constant features map to 0.
func (s *MinMaxScaler) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.Min) {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrDimension, i, len(row), len(s.Min))
		}
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if span := s.Max[j] - s.Min[j]; span != 0 {
				out[i][j] = (v - s.Min[j]) / span
			}
		}
	}
	return out, nil
}

func (f *scalerFile) build() (Scaler, error) {
	if err := checkFeatures(f.Features); err != nil {
		return nil, err
	}
	switch f.Kind {
	case ScalerStandard, "":
		if len(f.Mean) != model.FeatureCount || len(f.Scale) != model.FeatureCount {
			return nil, fmt.Errorf("%w: standard scaler needs %d means and scales", ErrDimension, model.FeatureCount)
		}
		return &StandardScaler{Mean: f.Mean, Scale: f.Scale}, nil
	case ScalerMinMax:
		if len(f.Min) != model.FeatureCount || len(f.Max) != model.FeatureCount {
			return nil, fmt.Errorf("%w: minmax scaler needs %d bounds", ErrDimension, model.FeatureCount)
		}
		return &MinMaxScaler{Min: f.Min, Max: f.Max}, nil
	default:
		return nil, fmt.Errorf("%w: scaler kind %q", ErrUnknownKind, f.Kind)
	}
}

// checkFeatures verifies an optional feature list matches canonical order.
func checkFeatures(features []string) error {
	if len(features) == 0 {
		return nil
	}
	cols := model.Columns()
	if len(features) != len(cols) {
		return fmt.Errorf("%w: artifact lists %d features, want %d", ErrDimension, len(features), len(cols))
	}
	for i, f := range features {
		if f != cols[i] {
			return fmt.Errorf("%w: feature %d is %q, want %q", ErrFeatureOrder, i, f, cols[i])
		}
	}
	return nil
}
