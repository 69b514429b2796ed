package sampledata

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/pkg/logger"
)

// ErrInvalidOptions is returned for a non-positive row count or a negative
// extra or malformed count.
var ErrInvalidOptions = errors.New("invalid generate options")

// SampleIDColumn is the first extra column. It holds a UUID per row.
const SampleIDColumn = "sample_id"

type feature struct {
	column string
	alias  string
	min    float64
	max    float64
}

// Ranges roughly follow the Kepler cumulative KOI table.
var features = [model.FeatureCount]feature{
	{model.ColPeriod, "Orbital Period (days)", 0.3, 500},
	{model.ColTime0bk, "Transit Epoch time0bk (BKJD)", 120, 600},
	{model.ColImpact, "Impact Parameter", 0, 1.5},
	{model.ColDuration, "Transit Duration (hrs)", 0.5, 15},
	{model.ColDepth, "Transit Depth (ppm)", 10, 20000},
	{model.ColPrad, "Planetary Radius prad (Earth radii)", 0.5, 30},
	{model.ColTeq, "Equilibrium Temperature teq (K)", 200, 3000},
	{model.ColInsol, "Insolation Flux insol (Earth flux)", 0.1, 5000},
	{model.ColModelSNR, "Transit Signal-to-Noise model_snr", 5, 500},
	{model.ColSteff, "Stellar Effective Temperature steff (K)", 3000, 7500},
	{model.ColSlogg, "Stellar Surface Gravity slogg", 3.5, 5},
	{model.ColSrad, "Stellar Radius srad (Solar radii)", 0.3, 3},
	{model.ColKepmag, "Kepler-band kepmag", 9, 17},
}

// Header returns the header Generate writes for opts.
func Header(opts Options) []string {
	h := make([]string, 0, model.FeatureCount+opts.Extra)
	for _, f := range features {
		if opts.Aliases {
			h = append(h, f.alias)
		} else {
			h = append(h, f.column)
		}
	}
	for i := 0; i < opts.Extra; i++ {
		if i == 0 {
			h = append(h, SampleIDColumn)
			continue
		}
		h = append(h, "extra_"+strconv.Itoa(i))
	}
	return h
}

// Generate renders a synthetic KOI table as CSV. Rows are produced
// concurrently and each row draws from its own source keyed by the seed and
// row index, so a fixed seed yields identical output for any worker count.
func Generate(ctx context.Context, opts Options) ([]byte, error) {
	if opts.Rows <= 0 || opts.Extra < 0 || opts.Malformed < 0 {
		return nil, fmt.Errorf("%w: rows=%d extra=%d malformed=%d", ErrInvalidOptions, opts.Rows, opts.Extra, opts.Malformed)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, opts.Rows)

	records := make([][]string, opts.Rows)
	perWorker := (opts.Rows + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < opts.Rows; start += perWorker {
		end := min(start+perWorker, opts.Rows)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				records[i] = generateRow(seed, i, opts.Extra)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("generate rows: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if opts.Semicolon {
		w.Comma = ';'
	}
	if err := w.Write(Header(opts)); err != nil {
		return nil, err
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	for i := 0; i < opts.Malformed; i++ {
		if err := w.Write(records[i%len(records)][:model.FeatureCount/2]); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	logger.Get().Debug(ctx, "generated sample table",
		logger.Int("rows", opts.Rows),
		logger.Int("malformed", opts.Malformed),
		logger.Bool("aliases", opts.Aliases),
		logger.Bool("semicolon", opts.Semicolon),
	)
	return buf.Bytes(), nil
}

func generateRow(seed uint64, index, extra int) []string {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	binary.LittleEndian.PutUint64(key[8:16], uint64(index))
	src := rand.NewChaCha8(key)
	rng := rand.New(src)

	rec := make([]string, 0, model.FeatureCount+extra)
	for _, f := range features {
		v := f.min + rng.Float64()*(f.max-f.min)
		rec = append(rec, strconv.FormatFloat(v, 'f', 4, 64))
	}
	for i := 0; i < extra; i++ {
		if i == 0 {
			id, err := uuid.NewRandomFromReader(src)
			if err != nil {
				id = uuid.New()
			}
			rec = append(rec, id.String())
			continue
		}
		rec = append(rec, strconv.Itoa(rng.IntN(1000)))
	}
	return rec
}
