// Command koi-sample generates synthetic KOI tables and replays them
// against a running classifier.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/internal/sampledata"
	"github.com/okian/celestial/pkg/logger"
)

// Default flag values.
const (
	defaultRows    = 500
	defaultBatches = 8
	defaultTimeout = 30 * time.Second
	defaultRunTime = 10 * time.Minute
	filePermission = 0o600
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = os.Stderr.WriteString("koi-sample: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logFormat string
		verbose   bool
	)
	root := &cobra.Command{
		Use:   "koi-sample",
		Short: "Generate synthetic KOI tables and replay them against the classifier",
		Long: `koi-sample produces CSV tables shaped like the Kepler cumulative KOI
table and can submit them to a running classifier, downloading every export
and checking it against the classification reply.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}
			if verbose {
				return logger.SetLevelString("debug")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newGenerateCmd(), newSubmitCmd())
	return root
}

func bindGenerateFlags(cmd *cobra.Command, opts *sampledata.Options) {
	f := cmd.Flags()
	f.IntVar(&opts.Rows, "rows", defaultRows, "Valid rows per table")
	f.Uint64Var(&opts.Seed, "seed", 0, "Random seed (0 seeds from the clock)")
	f.BoolVar(&opts.Aliases, "aliases", false, "Write descriptive headers that need renaming")
	f.BoolVar(&opts.Semicolon, "semicolon", false, "Separate fields with ';'")
	f.IntVar(&opts.Extra, "extra", 0, "Unrelated columns to append")
	f.IntVar(&opts.Malformed, "malformed", 0, "Rows with a wrong field count to append")
	f.IntVar(&opts.Workers, "gen-workers", runtime.NumCPU(), "Generation goroutines")
}

func newGenerateCmd() *cobra.Command {
	var (
		opts   sampledata.Options
		output string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic KOI table",
		Example: `  koi-sample generate --rows 1000 --output koi.csv
  koi-sample generate --aliases --semicolon --malformed 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := sampledata.Generate(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, filePermission); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			logger.Get().Info(cmd.Context(), "table written",
				logger.String("output", output),
				logger.Int("rows", opts.Rows),
			)
			return nil
		},
	}
	bindGenerateFlags(cmd, &opts)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	cfg := sampledata.Config{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit generated tables and verify their exports",
		Example: `  koi-sample submit --url http://localhost:9080 --batches 16 --rows 2000
  koi-sample submit --aliases --extra 2 --malformed 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTime)
			defer cancel()

			report, err := sampledata.Run(ctx, &cfg)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVar(&cfg.Batches, "batches", defaultBatches, "Tables to submit")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "Concurrent submissions")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	bindGenerateFlags(cmd, &cfg.Generate)
	return cmd
}

func printReport(w io.Writer, r sampledata.Report) error {
	_, err := fmt.Fprintf(w, `Batches:   %d
Rows:      %d
Skipped:   %d
Renamed:   %d
Strategy:  %s
Confirmed: %d
Candidate: %d
False Pos: %d
Duration:  %s
`, r.Batches, r.Rows, r.Skipped, r.Renamed, r.Strategy,
		r.Counts[model.LabelConfirmed.String()], r.Counts[model.LabelCandidate.String()],
		r.Counts[model.LabelFalsePositive.String()],
		r.Duration.Round(time.Millisecond))
	return err
}
