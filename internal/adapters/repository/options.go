package repository

import "github.com/google/uuid"

const defaultCapacity = 64

type settings struct {
	capacity int
	newID    func() string
}

func defaults() settings {
	return settings{
		capacity: defaultCapacity,
		newID:    uuid.NewString,
	}
}

// Option applies a configuration option to a MemoryStore.
type Option func(*settings)

// WithCapacity sets the maximum number of entries kept. Values <= 0 keep
// the default.
func WithCapacity(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithIDFunc replaces the id generator. Ids must be unique.
func WithIDFunc(fn func() string) Option {
	return func(s *settings) {
		if fn != nil {
			s.newID = fn
		}
	}
}
