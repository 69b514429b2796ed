package sampledata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/celestial/pkg/logger"
)

// Run generates cfg.Batches tables, submits them concurrently, downloads
// every export and verifies it against the reply. The first failure cancels
// the remaining batches.
func Run(ctx context.Context, cfg *Config) (Report, error) {
	start := time.Now()
	log := logger.Get()

	log.Info(ctx, "starting sample run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("batches", cfg.Batches),
		logger.Int("rows", cfg.Generate.Rows),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
	)

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return Report{}, fmt.Errorf("service health check failed: %w", err)
	}

	var (
		mu     sync.Mutex
		report = Report{Counts: make(map[string]int)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for batch := 0; batch < cfg.Batches; batch++ {
		g.Go(func() error {
			opts := cfg.Generate
			if opts.Seed != 0 {
				opts.Seed += uint64(batch)
			}
			data, err := Generate(gctx, opts)
			if err != nil {
				return fmt.Errorf("batch %d: %w", batch, err)
			}

			filename := fmt.Sprintf("koi_sample_%03d.csv", batch)
			sub, err := client.Submit(gctx, filename, data)
			if err != nil {
				return fmt.Errorf("batch %d: %w", batch, err)
			}
			export, err := client.Export(gctx, sub.ID)
			if err != nil {
				return fmt.Errorf("batch %d: %w", batch, err)
			}
			if err := Verify(gctx, sub, export); err != nil {
				return fmt.Errorf("batch %d: %w", batch, err)
			}

			log.Debug(gctx, "batch verified",
				logger.Int("batch", batch),
				logger.String("id", sub.ID),
				logger.Int("rows", sub.Rows),
			)

			mu.Lock()
			defer mu.Unlock()
			report.Batches++
			report.Rows += sub.Rows
			report.Skipped += sub.Skipped
			report.Renamed += len(sub.Renamed)
			report.Strategy = sub.Strategy
			for label, n := range sub.Counts {
				report.Counts[label] += n
			}
			return nil
		})
	}
	err := g.Wait()
	report.Duration = time.Since(start)
	if err != nil {
		return report, err
	}

	log.Info(ctx, "sample run completed",
		logger.Int("batches", report.Batches),
		logger.Int("rows", report.Rows),
		logger.Int("skipped", report.Skipped),
		logger.String("strategy", report.Strategy),
		logger.Any("counts", report.Counts),
		logger.Duration("duration", report.Duration),
	)
	return report, nil
}
