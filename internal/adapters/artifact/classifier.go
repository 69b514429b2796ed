package artifact

import (
	"fmt"

	"github.com/okian/celestial/internal/domain/model"
)

// Classifier kinds understood by the loader.
const (
	ClassifierLinear = "linear"
	ClassifierForest = "forest"
)

// classifierFile is the on-disk classifier layout.
type classifierFile struct {
	Kind      string      `json:"kind" yaml:"kind"`
	Features  []string    `json:"features,omitempty" yaml:"features,omitempty"`
	Classes   []int       `json:"classes" yaml:"classes"`
	Coef      [][]float64 `json:"coef,omitempty" yaml:"coef,omitempty"`
	Intercept []float64   `json:"intercept,omitempty" yaml:"intercept,omitempty"`
	Trees     []treeFile  `json:"trees,omitempty" yaml:"trees,omitempty"`
}

type treeFile struct {
	Nodes []nodeFile `json:"nodes" yaml:"nodes"`
}

// nodeFile is one node of a flattened decision tree. A node is a leaf when
// Left is negative; Value then holds per-class weights.
type nodeFile struct {
	Feature   int       `json:"feature" yaml:"feature"`
	Threshold float64   `json:"threshold" yaml:"threshold"`
	Left      int       `json:"left" yaml:"left"`
	Right     int       `json:"right" yaml:"right"`
	Value     []float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// LinearClassifier scores each class as coef·x + intercept and picks the
// highest score.
type LinearClassifier struct {
	Classes   []int
	Coef      [][]float64
	Intercept []float64
}

// Predict implements Classifier.
func (c *LinearClassifier) Predict(x [][]float64) ([]int, error) {
	out := make([]int, len(x))
	scores := make([]float64, len(c.Classes))
	for i, row := range x {
		if len(row) != model.FeatureCount {
			return nil, fmt.Errorf("%w: row %d has %d features", ErrDimension, i, len(row))
		}
		for k := range c.Classes {
			s := c.Intercept[k]
			for j, v := range row {
				s += c.Coef[k][j] * v
			}
			scores[k] = s
		}
		out[i] = c.Classes[argmax(scores)]
	}
	return out, nil
}

// ForestClassifier averages the leaf class distributions of its trees.
type ForestClassifier struct {
	Classes []int
	Trees   [][]nodeFile
}

// Predict implements Classifier.
func (c *ForestClassifier) Predict(x [][]float64) ([]int, error) {
	out := make([]int, len(x))
	proba := make([]float64, len(c.Classes))
	for i, row := range x {
		if len(row) != model.FeatureCount {
			return nil, fmt.Errorf("%w: row %d has %d features", ErrDimension, i, len(row))
		}
		for k := range proba {
			proba[k] = 0
		}
		for _, nodes := range c.Trees {
			leaf := walk(nodes, row)
			total := 0.0
			for _, v := range leaf.Value {
				total += v
			}
			if total == 0 {
				continue
			}
			for k, v := range leaf.Value {
				proba[k] += v / total
			}
		}
		out[i] = c.Classes[argmax(proba)]
	}
	return out, nil
}

// walk follows split decisions from the root to a leaf.
func walk(nodes []nodeFile, row []float64) nodeFile {
	n := nodes[0]
	for n.Left >= 0 {
		if row[n.Feature] <= n.Threshold {
			n = nodes[n.Left]
		} else {
			n = nodes[n.Right]
		}
	}
	return n
}

// argmax returns the first index of the largest value.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func (f *classifierFile) build() (Classifier, error) {
	if err := checkFeatures(f.Features); err != nil {
		return nil, err
	}
	k := len(f.Classes)
	if k == 0 {
		return nil, fmt.Errorf("%w: classifier lists no classes", ErrDimension)
	}

	switch f.Kind {
	case ClassifierLinear:
		if len(f.Coef) != k || len(f.Intercept) != k {
			return nil, fmt.Errorf("%w: linear classifier needs %d coefficient rows and intercepts", ErrDimension, k)
		}
		for i, row := range f.Coef {
			if len(row) != model.FeatureCount {
				return nil, fmt.Errorf("%w: coefficient row %d has %d values", ErrDimension, i, len(row))
			}
		}
		return &LinearClassifier{Classes: f.Classes, Coef: f.Coef, Intercept: f.Intercept}, nil
	case ClassifierForest:
		if len(f.Trees) == 0 {
			return nil, fmt.Errorf("%w: forest has no trees", ErrDimension)
		}
		trees := make([][]nodeFile, len(f.Trees))
		for t, tree := range f.Trees {
			if err := validateTree(tree.Nodes, k); err != nil {
				return nil, fmt.Errorf("tree %d: %w", t, err)
			}
			trees[t] = tree.Nodes
		}
		return &ForestClassifier{Classes: f.Classes, Trees: trees}, nil
	default:
		return nil, fmt.Errorf("%w: classifier kind %q", ErrUnknownKind, f.Kind)
	}
}

// validateTree checks node references. Children must follow their parent so
// that walk always terminates.
func validateTree(nodes []nodeFile, classes int) error {
	if len(nodes) == 0 {
		return fmt.Errorf("%w: empty tree", ErrDimension)
	}
	for i, n := range nodes {
		if n.Left < 0 {
			if len(n.Value) != classes {
				return fmt.Errorf("%w: leaf %d has %d class weights, want %d", ErrDimension, i, len(n.Value), classes)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= model.FeatureCount {
			return fmt.Errorf("%w: node %d splits on feature %d", ErrDimension, i, n.Feature)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(nodes) || n.Right >= len(nodes) {
			return fmt.Errorf("%w: node %d has children %d/%d", ErrTreeLayout, i, n.Left, n.Right)
		}
	}
	return nil
}
