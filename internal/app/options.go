package service

import (
	"github.com/okian/celestial/internal/domain/prediction"
	"github.com/okian/celestial/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of classification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued chunks.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithChunkSize sets the number of rows per queued chunk.
func WithChunkSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithArtifactPaths sets where the model and scaler are read from.
func WithArtifactPaths(modelPath, scalerPath string) Option {
	return func(s *Service) {
		if modelPath != "" {
			s.modelPath = modelPath
		}
		if scalerPath != "" {
			s.scalerPath = scalerPath
		}
	}
}

// WithRandomSeed seeds the random fallback strategy. Zero keeps a
// time-based seed.
func WithRandomSeed(seed uint64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithStoreCapacity bounds the staged upload and result stores.
func WithStoreCapacity(uploads, results int) Option {
	return func(s *Service) {
		if uploads > 0 {
			s.uploadsCapacity = uploads
		}
		if results > 0 {
			s.resultsCapacity = results
		}
	}
}

// WithPredictor bypasses artifact loading and uses p for every prediction.
func WithPredictor(p prediction.Predictor) Option {
	return func(s *Service) {
		if p != nil {
			s.predictor = p
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
