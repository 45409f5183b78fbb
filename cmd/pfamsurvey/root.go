package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"PfamSurvey/internal/app"
	"PfamSurvey/internal/config"
	"PfamSurvey/internal/logging"
)

type rootOptions struct {
	configPath string
	workDir    string
	sampleSize int
	seed       uint64
	logLevel   string
	dbPath     string
	skipReport bool

	// stderr receives log records; nil means os.Stderr.
	stderr io.Writer
	// logger is built from the loaded config once a command starts.
	logger *slog.Logger
}

// errorLogger returns the configured logger, or a plain one when no command got that far.
func (o *rootOptions) errorLogger() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return logging.NewTo(o.logOutput(), "error", "text")
}

func (o *rootOptions) logOutput() io.Writer {
	if o.stderr != nil {
		return o.stderr
	}
	return os.Stderr
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&rootOptions{})
}

func buildRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "pfamsurvey",
		Short: "Search sampled proteomes for Pfam families and chart the hits",
		Long: `
Download a random sample of protein FASTA files from an index page, fetch one
Pfam HMM per accession listed in a TSV table, run hmmsearch over every pair,
aggregate the hits into summary_table.tsv and plot them.

"run" executes every stage. Each stage is also available on its own; stages
hand off through manifest.json in the work directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default $PFAMSURVEY_CONFIG)")
	flags.StringVarP(&opts.workDir, "workdir", "w", "", "directory for downloads, outputs and the manifest")
	flags.IntVarP(&opts.sampleSize, "sample", "n", 0, "number of sequence files to sample")
	flags.Uint64Var(&opts.seed, "seed", 0, "random seed for sampling, 0 for a random one")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite run ledger, relative to the work dir")
	flags.BoolVar(&opts.skipReport, "no-report", false, "skip chart rendering")

	root.AddCommand(
		stageCmd(opts, "run", "Run every stage in order", (*app.Application).Run),
		stageCmd(opts, "harvest", "Sample, download and decompress sequence files", (*app.Application).Harvest),
		stageCmd(opts, "fetch", "Download the Pfam profiles listed in the accession table", (*app.Application).Fetch),
		stageCmd(opts, "search", "Generate and execute the hmmsearch script", (*app.Application).Search),
		stageCmd(opts, "aggregate", "Parse search outputs into the summary table", (*app.Application).Aggregate),
		stageCmd(opts, "report", "Render charts from the summary table", (*app.Application).Report),
		statusCmd(opts),
	)
	return root
}

func stageCmd(opts *rootOptions, use, short string, stage func(*app.Application, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(application *app.Application) error {
				opts.logger.Info("stage started", "stage", use)
				return stage(application, cmd.Context())
			})
		},
	}
}

func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show the recorded outcome of a run (default: the run in manifest.json)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var runID string
			if len(args) == 1 {
				runID = args[0]
			}
			return withApp(cmd, opts, func(application *app.Application) error {
				st, err := application.Status(cmd.Context(), runID)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

func printStatus(w io.Writer, st app.RunStatus) {
	fmt.Fprintf(w, "run\t%s\n", st.RunID)
	fmt.Fprintf(w, "status\t%s\n", st.Status)
	fmt.Fprintf(w, "sequences\t%d downloaded, %d failed\n", st.Harvested, st.HarvestFailed)
	fmt.Fprintf(w, "profiles\t%d downloaded, %d failed\n", st.Fetched, st.FetchFailed)
	fmt.Fprintf(w, "hits\t%d\n", st.Hits)
}

// withApp loads the config, builds the logger and application, and runs fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(*app.Application) error) error {
	cfg := loadConfig(cmd, opts)
	opts.logger = logging.NewTo(opts.logOutput(), cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cmd.Context(), cfg, opts.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			opts.logger.Error("cannot close run ledger", "error", err)
		}
	}()
	return fn(application)
}

// loadConfig applies explicitly set flags over the file and environment settings.
func loadConfig(cmd *cobra.Command, opts *rootOptions) config.Config {
	cfg := config.Load(opts.configPath)

	flags := cmd.Flags()
	if flags.Changed("workdir") {
		cfg.WorkDir = opts.workDir
	}
	if flags.Changed("sample") {
		cfg.Harvest.SampleSize = opts.sampleSize
	}
	if flags.Changed("seed") {
		cfg.Harvest.Seed = opts.seed
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("db") {
		cfg.Storage.Path = opts.dbPath
	}
	if opts.skipReport {
		cfg.Report.Skip = true
	}
	return cfg
}
