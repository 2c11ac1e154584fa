package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/case-reconcile/internal/config"
	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/normalize"
	"github.com/sells-group/case-reconcile/internal/reconcile"
	"github.com/sells-group/case-reconcile/internal/resilience"
	"github.com/sells-group/case-reconcile/internal/resolver"
	"github.com/sells-group/case-reconcile/internal/store"
)

var (
	runInput     string
	runOutput    string
	runOffline   bool
	runFixtures  string
	runWorkers   int
	runAttempts  int
	runSynonyms  string
	runNoHistory bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile an input file against the records service",
	Long: `Looks up every distinct case id in the input file and writes the enriched
table to the output path. Rows without a usable case id pass through unchanged.

Interrupting the run (Ctrl-C) stops new lookups, lets in-flight lookups finish
and still writes every row to the output file.

Examples:
  # Reconcile a spreadsheet
  case-reconcile run --input subscribers.xlsx --output subscribers-out.csv

  # Offline run against local fixtures
  case-reconcile run --input in.csv --output out.csv --offline --fixtures records.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		res, err := buildResolver(cfg, runOffline, runFixtures)
		if err != nil {
			return err
		}

		opts, err := buildRunOptions(cfg, res)
		if err != nil {
			return err
		}

		hist := openHistory(ctx, cfg, runNoHistory)
		if hist != nil {
			defer hist.Close() //nolint:errcheck
		}
		return executeRun(ctx, hist, runInput, runOutput, opts)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "path to the input .csv or .xlsx file (required)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "path of the output CSV file (required)")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "resolve against local fixtures instead of the records service")
	runCmd.Flags().StringVar(&runFixtures, "fixtures", "", "JSON fixtures for --offline (case id -> fields)")
	runCmd.Flags().IntVar(&runWorkers, "workers", reconcile.DefaultWorkers, "max concurrent lookups")
	runCmd.Flags().IntVar(&runAttempts, "attempts", 3, "attempts per case id before giving up")
	runCmd.Flags().StringVar(&runSynonyms, "synonyms", "", "YAML file with extra header synonyms")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "do not record the run in the history store")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags lets explicitly set flags override config values.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("workers") {
		c.Reconcile.Workers = runWorkers
	}
	if cmd.Flags().Changed("attempts") {
		c.Reconcile.MaxAttempts = runAttempts
	}
	if runSynonyms != "" {
		c.Input.SynonymsFile = runSynonyms
	}
	if runNoHistory {
		c.Store.Disabled = true
	}
}

func buildResolver(c *config.Config, offline bool, fixtures string) (resolver.Resolver, error) {
	if offline {
		stub, err := resolver.LoadStubRecords(fixtures)
		if err != nil {
			return nil, err
		}
		zap.L().Info("offline mode: resolving from fixtures",
			zap.String("fixtures", fixtures), zap.Int("records", len(stub.Records)))
		return stub, nil
	}

	br := resilience.NewBreaker(c.Resolver.BreakerFailures, secs(c.Resolver.BreakerResetSec))
	br.OnStateChange = func(from, to resilience.BreakerState) {
		zap.L().Warn("records service circuit changed state",
			zap.Stringer("from", from), zap.Stringer("to", to))
	}
	return resolver.NewHTTPResolver(resolver.HTTPOptions{
		BaseURL:        c.Resolver.BaseURL,
		UserAgent:      c.Resolver.UserAgent,
		Timeout:        c.Resolver.Timeout(),
		RateLimitRPS:   c.Resolver.RateLimitRPS,
		RateLimitBurst: c.Resolver.RateLimitBurst,
		Breaker:        br,
	})
}

func buildRunOptions(c *config.Config, res resolver.Resolver) (reconcile.Options, error) {
	opts := reconcile.Options{
		Resolver:       res,
		Logger:         zap.L(),
		Workers:        c.Reconcile.Workers,
		MaxAttempts:    c.Reconcile.MaxAttempts,
		Backoff:        c.Reconcile.Backoff(),
		AttemptTimeout: c.Resolver.Timeout(),
		Charset:        c.Input.Charset,
		Sheet:          c.Input.Sheet,
	}
	if c.Input.SynonymsFile != "" {
		syn, err := normalize.LoadSynonyms(c.Input.SynonymsFile)
		if err != nil {
			return opts, err
		}
		opts.Synonyms = syn
	}
	return opts, nil
}

// openHistory returns nil when history is disabled or unavailable. A broken
// history store never blocks a run.
func openHistory(ctx context.Context, c *config.Config, disabled bool) store.Store {
	if disabled || c.Store.Disabled {
		return nil
	}
	st, err := store.Open(ctx, c.Store)
	if err != nil {
		zap.L().Warn("run history unavailable, continuing without it", zap.Error(err))
		return nil
	}
	return st
}

// executeRun runs the reconciliation and records it in hist when non-nil.
// The summary is persisted before a write failure is returned.
func executeRun(ctx context.Context, hist store.Store, input, output string, opts reconcile.Options) error {
	log := zap.L()
	// History writes must land even after an interrupt.
	hctx := context.WithoutCancel(ctx)

	var run *model.Run
	if hist != nil {
		run = &model.Run{InputPath: input, OutputPath: output}
		if err := hist.CreateRun(hctx, run); err != nil {
			log.Warn("record run start", zap.Error(err))
			run = nil
		}
	}

	sum, err := reconcile.RunProcess(ctx, input, output, opts)
	if err != nil {
		if run != nil {
			run.Status = model.RunStatusFailed
			run.Error = err.Error()
			if ferr := hist.FinishRun(hctx, *run); ferr != nil {
				log.Warn("record run failure", zap.Error(ferr))
			}
		}
		return eris.Wrap(err, "run")
	}

	if run != nil {
		finished := sum.Run(run.ID)
		if ferr := hist.FinishRun(hctx, finished); ferr != nil {
			log.Warn("record run summary", zap.Error(ferr))
		}
		if oerr := hist.RecordOutcomes(hctx, run.ID, sum.Outcomes(run.ID)); oerr != nil {
			log.Warn("record run outcomes", zap.Error(oerr))
		}
		log.Info("run recorded", zap.String("run_id", run.ID))
	}
	return sum.WriteErr
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
