package prediction

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/celestial/internal/domain/model"
)

// Option applies a configuration option to the RandomPredictor.
type Option func(*RandomPredictor)

// WithSeed makes the random strategy reproducible. Zero keeps the
// time-based seed.
func WithSeed(seed uint64) Option {
	return func(p *RandomPredictor) {
		if seed != 0 {
			p.seed = seed
		}
	}
}

// RandomPredictor labels each row independently and uniformly at random.
// Feature values are ignored. It is safe for concurrent use.
type RandomPredictor struct {
	mu   sync.Mutex
	seed uint64
	rng  *rand.Rand
}

// NewRandomPredictor creates a random-label predictor.
func NewRandomPredictor(opts ...Option) *RandomPredictor {
	p := &RandomPredictor{
		seed: uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rng = rand.New(rand.NewPCG(p.seed, p.seed^0x9e3779b97f4a7c15)) //nolint:gosec // labels are a demo fallback
	return p
}

// Strategy implements Predictor.
func (p *RandomPredictor) Strategy() string { return StrategyRandom }

// Predict implements Predictor.
func (p *RandomPredictor) Predict(ctx context.Context, rows []model.Row) ([]model.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	labels := make([]model.Label, len(rows))
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range rows {
		// Same draw as the trained model's class space: 0, 1 or 2.
		labels[i] = model.LabelFromClass(p.rng.IntN(3))
	}
	return labels, nil
}
