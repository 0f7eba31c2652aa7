package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/msgaudit/internal/audit"
	"github.com/livinlefevreloca/msgaudit/internal/classify"
	"github.com/livinlefevreloca/msgaudit/internal/config"
	"github.com/livinlefevreloca/msgaudit/internal/directory"
	"github.com/livinlefevreloca/msgaudit/internal/payload"
	"github.com/livinlefevreloca/msgaudit/internal/report"
	"github.com/livinlefevreloca/msgaudit/internal/source"
)

type runOptions struct {
	configPath string
	sourceKind string
	csvPath    string
	outDir     string
	workers    int
	policy     string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	c := &cobra.Command{
		Use:   "run",
		Short: "Decode and classify every scheduled message and write the reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runAudit(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	c.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (TOML)")
	c.Flags().StringVar(&opts.sourceKind, "source", "", "Record source: sql|csv")
	c.Flags().StringVar(&opts.csvPath, "csv", "", "Table export to read (implies --source csv)")
	c.Flags().StringVarP(&opts.outDir, "out", "o", "", "Directory for the digest, cleanup and dump files")
	c.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Records decoded concurrently")
	c.Flags().StringVar(&opts.policy, "policy", "", "Failure policy: abort|skip")
	return c
}

// loadRunConfig applies flags over the configuration file
func loadRunConfig(cmd *cobra.Command, opts runOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audit.ErrConfig, err)
	}

	flags := cmd.Flags()
	if flags.Changed("csv") {
		cfg.Source.Kind = config.SourceCSV
		cfg.Source.CSVPath = opts.csvPath
	}
	if flags.Changed("source") {
		cfg.Source.Kind = opts.sourceKind
	}
	if flags.Changed("out") {
		cfg.Output.Dir = opts.outDir
	}
	if flags.Changed("workers") {
		cfg.Engine.Workers = opts.workers
	}
	if flags.Changed("policy") {
		cfg.Engine.FailurePolicy = audit.Policy(opts.policy)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", audit.ErrConfig, err)
	}
	return cfg, nil
}

// runAudit opens the batch resources, runs the engine and closes them again
func runAudit(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (err error) {
	logger, err := newLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting msgaudit",
		"version", version,
		"source", cfg.Source.Kind,
		"directory", cfg.Directory.Kind,
		"output_dir", cfg.Output.Dir)

	src, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	dir, err := directory.Open(cfg.Directory)
	if err != nil {
		return fmt.Errorf("%w: %w", audit.ErrDirectory, err)
	}
	defer dir.Close()

	classifier, err := classify.New(cfg.Classifier)
	if err != nil {
		return fmt.Errorf("%w: %w", audit.ErrConfig, err)
	}

	emitter, err := report.Create(cfg.Output, cfg.Database.CleanupStatement)
	if err != nil {
		return fmt.Errorf("%w: %w", audit.ErrOutput, err)
	}
	defer func() {
		if closeErr := emitter.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", audit.ErrOutput, closeErr))
		}
	}()

	pipeline := &audit.Pipeline{
		Selection:  cfg.Payload.Selection,
		Unwrapper:  payload.NewUnwrapper(cfg.Payload.MaxDecodedBytes),
		Classifier: classifier,
		Resolver:   directory.NewResolver(dir, cfg.Directory.NameAttributes),
	}

	engine, err := audit.NewEngine(cfg.Engine, src, pipeline, emitter, logger)
	if err != nil {
		return err
	}

	rep, err := engine.Run(ctx)
	records, failures, cleanups := emitter.Counts()
	fmt.Fprintf(stdout, "run %s: %d records, %d undecodable, %d cleanup statements\n",
		rep.RunID, records, failures, cleanups)
	return err
}

func openSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceCSV:
		src, err := source.LoadCSV(cfg.Source.CSVPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", audit.ErrSource, err)
		}
		return src, nil
	default:
		src, err := source.OpenSQL(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", audit.ErrSource, err)
		}
		return src, nil
	}
}
