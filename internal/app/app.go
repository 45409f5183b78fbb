package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"PfamSurvey/internal/config"
	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/infrastructure/archive"
	"PfamSurvey/internal/infrastructure/download"
	"PfamSurvey/internal/infrastructure/hmmer"
	"PfamSurvey/internal/infrastructure/manifest"
	"PfamSurvey/internal/infrastructure/parser"
	"PfamSurvey/internal/infrastructure/report"
	"PfamSurvey/internal/infrastructure/storage"
	"PfamSurvey/internal/infrastructure/table"
	"PfamSurvey/internal/logging"
	"PfamSurvey/internal/ports"
	"PfamSurvey/internal/scanner"
	"PfamSurvey/internal/usecase"
)

// Application wires configs to use cases and the manifest hand-off between stages.
type Application struct {
	cfg      config.Config
	pipeline *usecase.Pipeline
	store    *manifest.Store
	repo     *storage.SQLiteRepository
	logger   *slog.Logger
}

// New validates cfg, prepares the work directory and builds every adapter.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	cfg.WorkDir = workDir
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	timeout := time.Duration(cfg.Harvest.TimeoutSeconds) * time.Second

	registry := scanner.NewRegistry()
	registry.Register(parser.NewAnchorScanner(nil, baseLogger.With("component", "scanner.anchors")).
		WithUserAgent(cfg.Harvest.UserAgent))

	source := parser.NewIndexSource(registry, cfg.Harvest.Sources, baseLogger.With("component", "source"))
	downloader := download.NewClient(nil, cfg.Harvest.ChunkSize, timeout, cfg.Harvest.UserAgent)

	var profiles ports.Retriever = downloader
	if cfg.Profiles.Retriever == "command" {
		profiles = download.NewCommandRetriever(cfg.Profiles.Tool, cfg.WorkDir)
	}

	var repo *storage.SQLiteRepository
	var repository ports.RunRepository
	if cfg.Storage.Path != "" {
		r, err := storage.Open(ctx, inWorkDir(cfg.WorkDir, cfg.Storage.Path))
		if err != nil {
			return nil, fmt.Errorf("open run ledger: %w", err)
		}
		repo, repository = r, r
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Links:      source,
		Downloader: downloader,
		Profiles:   profiles,
		Archive:    archive.New(cfg.Archive.Tool),
		Accessions: table.NewAccessionFile(cfg.Profiles.Table, cfg.Profiles.Column),
		Search:     hmmer.NewRunner(cfg.WorkDir, cfg.Search, baseLogger.With("component", "hmmer")),
		Parser:     hmmer.TableParser{},
		Summary:    table.SummaryFile{},
		Reports:    report.NewRenderer(cfg.Report.Format, baseLogger.With("component", "report")),
		Repository: repository,
		Grouper:    grouper(cfg.Aggregate),
		Rand:       usecase.NewRand(cfg.Harvest.Seed),
		Settings:   settings(cfg),
		Logger:     baseLogger.With("component", "pipeline"),
	})

	return &Application{
		cfg:      cfg,
		pipeline: pipeline,
		store:    manifest.NewStore(cfg.WorkDir),
		repo:     repo,
		logger:   baseLogger,
	}, nil
}

// Close releases the run ledger.
func (a *Application) Close() error {
	if a.repo == nil {
		return nil
	}
	return a.repo.Close()
}

// Run executes every stage and leaves the manifest in the work directory.
func (a *Application) Run(ctx context.Context) error {
	m, err := a.pipeline.Run(ctx)
	if m != nil {
		if saveErr := a.store.Save(m); saveErr != nil {
			return errors.Join(err, saveErr)
		}
		a.logger.Info("manifest saved", "path", a.store.Path(), "failures", len(m.Failures))
	}
	return err
}

// Harvest starts a new run and downloads the sampled sequence files.
func (a *Application) Harvest(ctx context.Context) error {
	m, err := a.pipeline.Start(ctx)
	if err != nil {
		return err
	}
	return a.step(ctx, m, func() error { return a.pipeline.Harvest(ctx, m) })
}

// Fetch downloads the profiles, joining the current run when one exists.
func (a *Application) Fetch(ctx context.Context) error {
	m, err := a.store.Load()
	if errors.Is(err, manifest.ErrNotFound) {
		m, err = a.pipeline.Start(ctx)
	}
	if err != nil {
		return err
	}
	return a.step(ctx, m, func() error { return a.pipeline.FetchProfiles(ctx, m) })
}

// Search runs the search tool over the manifest's profiles and sequence files.
func (a *Application) Search(ctx context.Context) error {
	m, err := a.store.Load()
	if err != nil {
		return err
	}
	return a.step(ctx, m, func() error { return a.pipeline.Search(ctx, m) })
}

// Aggregate writes the summary table for the manifest's completed pairs.
func (a *Application) Aggregate(ctx context.Context) error {
	m, err := a.store.Load()
	if err != nil {
		return err
	}
	return a.step(ctx, m, func() error {
		_, err := a.pipeline.Aggregate(ctx, m)
		return err
	})
}

// Report renders the charts from the summary table and closes the run.
func (a *Application) Report(ctx context.Context) error {
	m, err := a.store.Load()
	if err != nil {
		return err
	}
	if m.SummaryPath == "" {
		return fmt.Errorf("report: run %s has no summary table, run aggregate first", m.RunID)
	}

	err = a.step(ctx, m, func() error {
		rows, err := table.LoadSummary(m.SummaryPath)
		if err != nil {
			return err
		}
		return a.pipeline.Report(ctx, m, rows)
	})
	if err != nil {
		return err
	}
	return a.pipeline.Finish(ctx, m, nil)
}

// RunStatus summarises what the run ledger recorded for one run.
type RunStatus struct {
	RunID         string
	Status        string
	Harvested     int
	HarvestFailed int
	Fetched       int
	FetchFailed   int
	Hits          int
}

// Status reads the run ledger for runID, or for the run in the manifest when runID is empty.
func (a *Application) Status(ctx context.Context, runID string) (RunStatus, error) {
	if a.repo == nil {
		return RunStatus{}, errors.New("status: run ledger is disabled (storage.path is empty)")
	}
	if runID == "" {
		m, err := a.store.Load()
		if err != nil {
			return RunStatus{}, fmt.Errorf("status: %w", err)
		}
		runID = m.RunID
	}

	st := RunStatus{RunID: runID}
	var err error
	if st.Status, err = a.repo.RunStatus(ctx, runID); err != nil {
		return RunStatus{}, fmt.Errorf("status %s: %w", runID, err)
	}

	counts := []struct {
		stage  domain.Stage
		status string
		dst    *int
	}{
		{domain.StageHarvest, storage.StatusCompleted, &st.Harvested},
		{domain.StageHarvest, storage.StatusFailed, &st.HarvestFailed},
		{domain.StageFetch, storage.StatusCompleted, &st.Fetched},
		{domain.StageFetch, storage.StatusFailed, &st.FetchFailed},
	}
	for _, c := range counts {
		if *c.dst, err = a.repo.DownloadCount(ctx, runID, c.stage, c.status); err != nil {
			return RunStatus{}, fmt.Errorf("status %s: %w", runID, err)
		}
	}

	hits, err := a.repo.HitsForRun(ctx, runID)
	if err != nil {
		return RunStatus{}, fmt.Errorf("status %s: %w", runID, err)
	}
	st.Hits = len(hits)
	return st, nil
}

// step runs one stage, saves the manifest and closes the run on failure.
func (a *Application) step(ctx context.Context, m *domain.Manifest, fn func() error) error {
	runErr := fn()
	if runErr != nil {
		if err := a.pipeline.Finish(ctx, m, runErr); err != nil {
			a.logger.Error("cannot close run", "run_id", m.RunID, "error", err)
		}
	}
	if err := a.store.Save(m); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func settings(cfg config.Config) usecase.Settings {
	return usecase.Settings{
		WorkDir:            cfg.WorkDir,
		SampleSize:         cfg.Harvest.SampleSize,
		AccessionPrefix:    cfg.Profiles.Prefix,
		DedupeAccessions:   cfg.Profiles.Dedupe,
		ProfileURLTemplate: cfg.Profiles.URLTemplate,
		SequenceExtension:  cfg.Search.SequenceExtension,
		SummaryName:        cfg.Aggregate.Output,
		ReportDir:          inWorkDir(cfg.WorkDir, cfg.Report.Dir),
		SkipReport:         cfg.Report.Skip,
		Policies: map[domain.Stage]domain.FailurePolicy{
			domain.StageHarvest: cfg.FailurePolicy.Policy(domain.StageHarvest),
			domain.StageFetch:   cfg.FailurePolicy.Policy(domain.StageFetch),
			domain.StageSearch:  cfg.FailurePolicy.Policy(domain.StageSearch),
		},
	}
}

func grouper(cfg config.AggregateConfig) domain.Grouper {
	prefix := domain.PrefixGrouper(cfg.PrefixLength)
	if len(cfg.GroupLabels) == 0 {
		return prefix
	}
	return domain.NewMappingGrouper(cfg.GroupLabels, prefix)
}

func inWorkDir(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}
