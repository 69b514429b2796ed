// Package service wires artifact loading, CSV parsing, schema
// normalization and the classification worker pool behind the operations
// the HTTP adapters need.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/celestial/internal/adapters/artifact"
	chunkqueue "github.com/okian/celestial/internal/adapters/mq/queue"
	workerpool "github.com/okian/celestial/internal/adapters/mq/worker"
	"github.com/okian/celestial/internal/adapters/repository"
	"github.com/okian/celestial/internal/adapters/tabular"
	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/internal/domain/prediction"
	"github.com/okian/celestial/internal/domain/schema"
	"github.com/okian/celestial/pkg/logger"
	"github.com/okian/celestial/pkg/metrics"
)

// Upload outcomes recorded by StageUpload.
const (
	OutcomeStaged     = "staged"
	OutcomeIncomplete = "incomplete"
	OutcomeRejected   = "rejected"
)

// Upload is a parsed and normalized table waiting for a prediction request.
type Upload struct {
	ID        string
	Filename  string
	Table     model.Table
	Renames   []schema.Rename
	Missing   []string
	Skipped   int
	Delimiter rune
	Staged    time.Time
}

// Complete reports whether every canonical column is present.
func (u Upload) Complete() bool { return len(u.Missing) == 0 }

// Batch is a classified upload.
type Batch struct {
	ID       string
	Strategy string
	Result   model.Result
	Renames  []schema.Rename
	Skipped  int
	Created  time.Time
	Elapsed  time.Duration
}

// Service implements the dependencies of the HTTP API and site.
type Service struct {
	mu sync.RWMutex

	// Core components
	artifacts *artifact.Cache
	predictor prediction.Predictor
	queue     *chunkqueue.InMemoryQueue
	pool      *workerpool.Pool
	uploads   *repository.MemoryStore[Upload]
	results   *repository.MemoryStore[Batch]

	// Configuration
	workerCount     int
	queueSize       int
	chunkSize       int
	modelPath       string
	scalerPath      string
	seed            uint64
	uploadsCapacity int
	resultsCapacity int

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       1024,
		chunkSize:       512,
		modelPath:       "exoplanet_model.json",
		scalerPath:      "scaler.json",
		uploadsCapacity: 64,
		resultsCapacity: 64,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads the artifacts once, selects the prediction strategy and
// starts the worker pool. The pool outlives ctx; Stop ends it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting classification service...")

	if s.predictor == nil {
		if s.artifacts == nil {
			s.artifacts = artifact.NewCache(s.modelPath, s.scalerPath, artifact.WithLogger(s.logger))
		}
		bundle := s.artifacts.Get(ctx)
		var opts []prediction.Option
		if s.seed != 0 {
			opts = append(opts, prediction.WithSeed(s.seed))
		}
		s.predictor = prediction.Select(bundle.Classifier, bundle.Scaler, opts...)
	}

	s.uploads = repository.NewMemoryStore[Upload]("uploads", repository.WithCapacity(s.uploadsCapacity))
	s.results = repository.NewMemoryStore[Batch]("results", repository.WithCapacity(s.resultsCapacity))
	s.queue = chunkqueue.NewInMemoryQueue(chunkqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.predictor)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "classification service started",
		logger.String("strategy", s.predictor.Strategy()),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("chunkSize", s.chunkSize),
	)

	return nil
}

// Stop drains queued chunks and stops the workers. Workers still busy when
// ctx expires are abandoned.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping classification service...")

	err := s.pool.Shutdown(ctx)
	s.cancel()
	s.started = false

	if err != nil {
		s.logger.Warn(ctx, "classification service stopped with pending work", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "classification service stopped")
	return nil
}

// Strategy returns the active prediction strategy, or "" before Start.
func (s *Service) Strategy() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.predictor == nil {
		return ""
	}
	return s.predictor.Strategy()
}

// ModelLoaded reports whether the trained artifacts are in use.
func (s *Service) ModelLoaded() bool {
	return s.Strategy() == prediction.StrategyModel
}

// ChunkSize returns the number of rows classified per queued chunk.
func (s *Service) ChunkSize() int { return s.chunkSize }

func (s *Service) components() (*chunkqueue.InMemoryQueue, *repository.MemoryStore[Upload], *repository.MemoryStore[Batch], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, ErrNotStarted
	}
	return s.queue, s.uploads, s.results, nil
}

// StageUpload parses and normalizes a CSV document and keeps it for a
// later PredictUpload. Missing columns are not an error: the returned
// Upload lists them.
func (s *Service) StageUpload(ctx context.Context, filename string, r io.Reader) (Upload, error) {
	_, uploads, _, err := s.components()
	if err != nil {
		return Upload{}, err
	}

	parsed, err := tabular.Parse(ctx, r)
	if err != nil {
		metrics.RecordUpload(OutcomeRejected)
		metrics.RecordErrorByComponent("service", "parse")
		s.logger.Warn(ctx, "upload rejected",
			logger.String("filename", filename),
			logger.Error(err),
		)
		return Upload{}, err
	}
	if parsed.Fallback() {
		metrics.RecordDelimiterFallback()
	}
	metrics.RecordRowsSkipped(parsed.Skipped)

	report := schema.Normalize(parsed.Table)
	metrics.RecordColumnRenames(len(report.Renames))

	u := Upload{
		Filename:  filename,
		Table:     report.Table,
		Renames:   report.Renames,
		Missing:   report.Missing,
		Skipped:   parsed.Skipped,
		Delimiter: parsed.Delimiter,
		Staged:    time.Now(),
	}
	id, err := uploads.Put(ctx, u)
	if err != nil {
		return Upload{}, err
	}
	u.ID = id

	outcome := OutcomeStaged
	if !u.Complete() {
		outcome = OutcomeIncomplete
	}
	metrics.RecordUpload(outcome)

	s.logger.Info(ctx, "upload staged",
		logger.String("id", id),
		logger.String("filename", filename),
		logger.Int("rows", u.Table.Len()),
		logger.Int("skipped", u.Skipped),
		logger.Int("renamed", len(u.Renames)),
		logger.Any("missing", u.Missing),
	)
	return u, nil
}

// Upload returns a staged upload.
func (s *Service) Upload(ctx context.Context, id string) (Upload, error) {
	_, uploads, _, err := s.components()
	if err != nil {
		return Upload{}, err
	}
	u, err := uploads.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return Upload{}, fmt.Errorf("upload %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Upload{}, err
	}
	u.ID = id
	return u, nil
}

// PredictUpload classifies a staged upload. It fails with
// *schema.MissingColumnsError when the upload is incomplete.
func (s *Service) PredictUpload(ctx context.Context, id string) (Batch, error) {
	u, err := s.Upload(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	return s.predictUpload(ctx, u)
}

// Classify stages r and classifies it in one step.
func (s *Service) Classify(ctx context.Context, filename string, r io.Reader) (Batch, error) {
	u, err := s.StageUpload(ctx, filename, r)
	if err != nil {
		return Batch{}, err
	}
	return s.predictUpload(ctx, u)
}

func (s *Service) predictUpload(ctx context.Context, u Upload) (Batch, error) { //nolint:gocritic // hugeParam: Upload is a read-only snapshot
	sel, err := schema.Select(u.Table)
	if err != nil {
		return Batch{}, err
	}
	b, err := s.predictBatch(ctx, sel)
	if err != nil {
		return Batch{}, err
	}
	b.Renames = u.Renames
	b.Skipped = u.Skipped

	_, _, results, err := s.components()
	if err != nil {
		return Batch{}, err
	}
	id, err := results.Put(ctx, b)
	if err != nil {
		return Batch{}, err
	}
	b.ID = id

	s.logger.Info(ctx, "batch classified",
		logger.String("id", id),
		logger.String("upload", u.ID),
		logger.String("strategy", b.Strategy),
		logger.Int("rows", b.Result.Len()),
		logger.Duration("elapsed", b.Elapsed),
	)
	return b, nil
}

// predictBatch splits sel into chunks, queues them and reassembles the
// labels in row order.
func (s *Service) predictBatch(ctx context.Context, sel schema.Selection) (Batch, error) {
	queue, _, _, err := s.components()
	if err != nil {
		return Batch{}, err
	}

	start := time.Now()
	strategy := s.Strategy()
	rows := sel.Rows
	n := (len(rows) + s.chunkSize - 1) / s.chunkSize
	parts := make([][]model.Label, n)
	reply := make(chan model.ChunkResult, n)
	batchID := uuid.NewString()

	enqueued := 0
	for i := 0; i < n; i++ {
		lo := i * s.chunkSize
		hi := min(lo+s.chunkSize, len(rows))
		c := model.Chunk{BatchID: batchID, Index: i, Rows: rows[lo:hi], Reply: reply}
		if err := queue.Enqueue(ctx, c); err != nil {
			metrics.RecordErrorByComponent("service", "enqueue")
			switch {
			case errors.Is(err, chunkqueue.ErrFull):
				return Batch{}, fmt.Errorf("enqueue chunk %d/%d: %w", i+1, n, ErrBackpressure)
			case errors.Is(err, chunkqueue.ErrClosed):
				return Batch{}, ErrNotStarted
			default:
				return Batch{}, err
			}
		}
		enqueued++
	}

	for received := 0; received < enqueued; received++ {
		select {
		case res := <-reply:
			if res.Err != nil {
				metrics.RecordClassifyError()
				return Batch{}, fmt.Errorf("%w: chunk %d: %w", ErrClassify, res.Index, res.Err)
			}
			parts[res.Index] = res.Labels
		case <-ctx.Done():
			return Batch{}, ctx.Err()
		}
	}

	labels := make([]model.Label, 0, len(rows))
	for _, p := range parts {
		labels = append(labels, p...)
	}

	elapsed := time.Since(start)
	metrics.RecordBatch(float64(elapsed.Microseconds())/1000.0, len(rows))
	res := model.Result{Rows: rows, Cells: sel.Cells, Labels: labels}
	for label, count := range res.Counts() {
		metrics.RecordPredictions(label.String(), strategy, count)
	}

	return Batch{
		Strategy: strategy,
		Result:   res,
		Created:  time.Now(),
		Elapsed:  elapsed,
	}, nil
}

// ClassifyRow classifies one manually entered row without queueing it.
func (s *Service) ClassifyRow(ctx context.Context, row model.Row) (model.Label, error) { //nolint:gocritic // hugeParam: Row is a value type
	s.mu.RLock()
	p, started := s.predictor, s.started
	s.mu.RUnlock()
	if !started {
		return "", ErrNotStarted
	}

	labels, err := p.Predict(ctx, []model.Row{row})
	if err != nil {
		metrics.RecordClassifyError()
		return "", fmt.Errorf("%w: %w", ErrClassify, err)
	}
	if len(labels) != 1 {
		metrics.RecordClassifyError()
		return "", fmt.Errorf("%w: got %d labels for 1 row", ErrClassify, len(labels))
	}
	metrics.RecordPrediction(labels[0].String(), p.Strategy())
	return labels[0], nil
}

// Result returns a classified batch.
func (s *Service) Result(ctx context.Context, id string) (Batch, error) {
	_, _, results, err := s.components()
	if err != nil {
		return Batch{}, err
	}
	b, err := results.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return Batch{}, fmt.Errorf("result %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Batch{}, err
	}
	b.ID = id
	return b, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"chunkSize":   s.chunkSize,
	}

	if s.started {
		stats["strategy"] = s.predictor.Strategy()
		stats["workerCount"] = s.pool.Size()
		stats["queueLength"] = s.queue.Len(ctx)
		stats["stagedUploads"] = s.uploads.Len()
		stats["storedResults"] = s.results.Len()

		metrics.UpdateQueueSize(s.queue.Len(ctx))
	}

	return stats
}
