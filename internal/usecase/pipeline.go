package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/ports"
)

// Settings are the run parameters the pipeline needs beyond its adapters.
type Settings struct {
	WorkDir            string
	SampleSize         int
	AccessionPrefix    string
	DedupeAccessions   bool
	ProfileURLTemplate string
	SequenceExtension  string
	SummaryName        string
	ReportDir          string
	SkipReport         bool
	Policies           map[domain.Stage]domain.FailurePolicy
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Links      ports.LinkSource
	Downloader ports.Retriever
	Profiles   ports.Retriever
	Archive    ports.Decompressor
	Accessions ports.AccessionSource
	Search     ports.SearchRunner
	Parser     ports.HitParser
	Summary    ports.SummaryWriter
	Reports    ports.ReportRenderer
	Repository ports.RunRepository
	Grouper    domain.Grouper
	Rand       *rand.Rand
	Settings   Settings
	Logger     *slog.Logger
}

// Pipeline implements the harvest, fetch, search, aggregate and report workflow.
type Pipeline struct {
	links      ports.LinkSource
	downloader ports.Retriever
	profiles   ports.Retriever
	archive    ports.Decompressor
	accessions ports.AccessionSource
	search     ports.SearchRunner
	parser     ports.HitParser
	summary    ports.SummaryWriter
	reports    ports.ReportRenderer
	repository ports.RunRepository
	grouper    domain.Grouper
	rng        *rand.Rand
	settings   Settings
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	grouper := deps.Grouper
	if grouper == nil {
		grouper = domain.PrefixGrouper(3)
	}
	rng := deps.Rand
	if rng == nil {
		rng = NewRand(0)
	}
	profiles := deps.Profiles
	if profiles == nil {
		profiles = deps.Downloader
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		links:      deps.Links,
		downloader: deps.Downloader,
		profiles:   profiles,
		archive:    deps.Archive,
		accessions: deps.Accessions,
		search:     deps.Search,
		parser:     deps.Parser,
		summary:    deps.Summary,
		reports:    deps.Reports,
		repository: deps.Repository,
		grouper:    grouper,
		rng:        rng,
		settings:   deps.Settings,
		logger:     logger,
	}
}

// Run executes every stage in order and returns the final manifest.
func (p *Pipeline) Run(ctx context.Context) (*domain.Manifest, error) {
	m, err := p.Start(ctx)
	if err != nil {
		return nil, err
	}

	runErr := p.runStages(ctx, m)
	if err := p.Finish(ctx, m, runErr); err != nil && runErr == nil {
		runErr = err
	}
	return m, runErr
}

func (p *Pipeline) runStages(ctx context.Context, m *domain.Manifest) error {
	if err := p.Harvest(ctx, m); err != nil {
		return err
	}
	if err := p.FetchProfiles(ctx, m); err != nil {
		return err
	}
	if err := p.Search(ctx, m); err != nil {
		return err
	}
	rows, err := p.Aggregate(ctx, m)
	if err != nil {
		return err
	}
	return p.Report(ctx, m, rows)
}

// Start opens a new run and its empty manifest.
func (p *Pipeline) Start(ctx context.Context) (*domain.Manifest, error) {
	m := &domain.Manifest{
		RunID:   uuid.NewString(),
		WorkDir: p.settings.WorkDir,
	}
	if p.repository != nil {
		if err := p.repository.StartRun(ctx, m.RunID, m.WorkDir); err != nil {
			return nil, fmt.Errorf("start run: %w", err)
		}
	}
	p.logger.Info("run started", "run_id", m.RunID, "work_dir", m.WorkDir)
	return m, nil
}

// Finish records the outcome of a run.
func (p *Pipeline) Finish(ctx context.Context, m *domain.Manifest, runErr error) error {
	if runErr != nil {
		p.logger.Error("run failed", "run_id", m.RunID, "error", runErr)
	} else {
		p.logger.Info("run finished", "run_id", m.RunID, "failures", len(m.Failures))
	}
	if p.repository == nil {
		return nil
	}
	if err := p.repository.FinishRun(ctx, m.RunID, runErr); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Harvest samples sequence links from the index pages, downloads and decompresses them.
func (p *Pipeline) Harvest(ctx context.Context, m *domain.Manifest) error {
	if p.links == nil || p.downloader == nil || p.archive == nil {
		return fmt.Errorf("harvest: link source, downloader and archive are required")
	}

	links, err := p.links.Links(ctx)
	if err != nil {
		return fmt.Errorf("harvest links: %w", err)
	}

	selected, err := Sample(links, p.settings.SampleSize, p.rng)
	if err != nil {
		return fmt.Errorf("harvest: %w", err)
	}
	p.logger.Info("links sampled", "found", len(links), "selected", len(selected))

	names := LocalNames(selected)
	for i, link := range selected {
		dest := filepath.Join(p.settings.WorkDir, names[i])
		path, err := p.fetchAndUnpack(ctx, p.downloader, link.URL, dest)
		if recErr := p.record(ctx, m, domain.StageHarvest, link.URL, path, err); recErr != nil {
			return recErr
		}
		if err != nil {
			if err := p.handleFailure(m, domain.StageHarvest, link.URL, err); err != nil {
				return err
			}
			continue
		}
		m.Sequences = append(m.Sequences, domain.SequenceFile{URL: link.URL, Path: path})
		p.logger.Debug("sequence file ready", "url", link.URL, "path", path)
	}
	return nil
}

// FetchProfiles downloads one profile per accession passing the prefix filter.
func (p *Pipeline) FetchProfiles(ctx context.Context, m *domain.Manifest) error {
	if p.accessions == nil || p.profiles == nil || p.archive == nil {
		return fmt.Errorf("fetch: accession source, retriever and archive are required")
	}

	values, err := p.accessions.Accessions(ctx)
	if err != nil {
		return fmt.Errorf("load accessions: %w", err)
	}
	m.Accessions = FilterAccessions(values, p.settings.AccessionPrefix, p.settings.DedupeAccessions)
	p.logger.Info("accessions filtered", "rows", len(values), "kept", len(m.Accessions), "prefix", p.settings.AccessionPrefix)

	for _, acc := range m.Accessions {
		profileURL := ProfileURL(p.settings.ProfileURLTemplate, acc)
		dest := filepath.Join(p.settings.WorkDir, acc+".gz")
		path, err := p.fetchAndUnpack(ctx, p.profiles, profileURL, dest)
		if recErr := p.record(ctx, m, domain.StageFetch, acc, path, err); recErr != nil {
			return recErr
		}
		if err != nil {
			if err := p.handleFailure(m, domain.StageFetch, acc, err); err != nil {
				return err
			}
			continue
		}
		m.Profiles = append(m.Profiles, domain.Profile{Accession: acc, Path: path})
		p.logger.Debug("profile ready", "accession", acc, "path", path)
	}
	return nil
}

// Search runs the search tool over every (profile, sequence file) pair in the manifest.
func (p *Pipeline) Search(ctx context.Context, m *domain.Manifest) error {
	if p.search == nil {
		return fmt.Errorf("search: runner is required")
	}

	if ext := p.settings.SequenceExtension; ext != "" {
		for _, seq := range m.Sequences {
			if strings.HasSuffix(seq.Path, ext) {
				continue
			}
			err := fmt.Errorf("sequence file does not end in %q", ext)
			if err := p.handleFailure(m, domain.StageSearch, filepath.Base(seq.Path), err); err != nil {
				return err
			}
		}
	}

	pairs := domain.SearchPairs(m.Profiles, m.Sequences, p.settings.WorkDir, p.settings.SequenceExtension)
	if len(pairs) == 0 {
		return fmt.Errorf("search: no pairs (%d profiles, %d sequence files)", len(m.Profiles), len(m.Sequences))
	}

	p.logger.Info("search started", "pairs", len(pairs))
	report, err := p.search.Run(ctx, pairs)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	m.ScriptPath = report.ScriptPath
	m.Pairs = report.Pairs

	if report.Err != nil && p.policy(domain.StageSearch) == domain.PolicyAbort {
		return fmt.Errorf("search script: %w", report.Err)
	}

	for _, pair := range m.Pairs {
		if pair.Done {
			continue
		}
		cause := errors.New("no output produced")
		if report.Err != nil {
			cause = fmt.Errorf("no output produced: %w", report.Err)
		}
		if err := p.handleFailure(m, domain.StageSearch, filepath.Base(pair.OutputPath), cause); err != nil {
			return err
		}
	}

	p.logger.Info("search finished", "completed", len(m.CompletedPairs()), "pairs", len(m.Pairs))
	return nil
}

// Aggregate parses every completed output into one row per hit and persists the table.
func (p *Pipeline) Aggregate(ctx context.Context, m *domain.Manifest) ([]domain.SummaryRow, error) {
	if p.parser == nil || p.summary == nil {
		return nil, fmt.Errorf("aggregate: parser and summary writer are required")
	}

	var rows []domain.SummaryRow
	for _, pair := range m.CompletedPairs() {
		results, err := p.parser.ParseFile(pair.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
		rows = append(rows, Flatten(pair.Accession, results, p.grouper)...)
	}

	m.SummaryPath = p.settings.SummaryName
	if !filepath.IsAbs(m.SummaryPath) {
		m.SummaryPath = filepath.Join(p.settings.WorkDir, m.SummaryPath)
	}
	if err := p.summary.WriteSummary(m.SummaryPath, rows); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	p.logger.Info("summary written", "path", m.SummaryPath, "rows", len(rows))

	if p.repository != nil {
		if err := p.repository.SaveHits(ctx, m.RunID, rows); err != nil {
			return nil, fmt.Errorf("persist hits: %w", err)
		}
	}
	return rows, nil
}

// Report renders the charts for the aggregate table.
func (p *Pipeline) Report(ctx context.Context, m *domain.Manifest, rows []domain.SummaryRow) error {
	if p.settings.SkipReport || p.reports == nil {
		return nil
	}
	if len(rows) == 0 {
		p.logger.Warn("no hits, charts skipped")
		return nil
	}

	files, err := p.reports.Render(rows, p.settings.ReportDir)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	m.Charts = files
	p.logger.Info("charts written", "files", files)
	return nil
}

// Flatten turns parsed query results into one summary row per hit.
func Flatten(accession string, results []domain.QueryResult, grouper domain.Grouper) []domain.SummaryRow {
	var rows []domain.SummaryRow
	for _, q := range results {
		for _, h := range q.Hits {
			rows = append(rows, domain.SummaryRow{
				Hit: domain.Hit{
					Accession:  accession,
					QueryName:  q.ID,
					TargetName: h.TargetName,
					EValue:     h.EValue,
					Score:      h.Score,
				},
				GroupKey: grouper.Key(h.TargetName),
			})
		}
	}
	return rows
}

// LocalNames picks a distinct file name per link. Links sharing a final path
// segment are prefixed with their parent directory, then with a counter.
func LocalNames(links []domain.SequenceLink) []string {
	counts := map[string]int{}
	for _, l := range links {
		counts[l.Name]++
	}

	names := make([]string, len(links))
	used := map[string]struct{}{}
	for i, l := range links {
		name := l.Name
		if counts[name] > 1 {
			if u, err := url.Parse(l.URL); err == nil {
				if dir := path.Base(path.Dir(u.Path)); dir != "/" && dir != "." {
					name = dir + "_" + name
				}
			}
		}
		for n := 2; ; n++ {
			if _, taken := used[name]; !taken {
				break
			}
			name = fmt.Sprintf("%d_%s", n, l.Name)
		}
		used[name] = struct{}{}
		names[i] = name
	}
	return names
}

// ProfileURL interpolates the path-escaped accession into the template.
func ProfileURL(template, accession string) string {
	return strings.ReplaceAll(template, domain.AccessionPlaceholder, url.PathEscape(accession))
}

func (p *Pipeline) fetchAndUnpack(ctx context.Context, r ports.Retriever, src, dest string) (string, error) {
	if err := r.Retrieve(ctx, src, dest); err != nil {
		return "", err
	}
	path, err := p.archive.Decompress(ctx, dest)
	if err != nil {
		return "", fmt.Errorf("decompress %s: %w", filepath.Base(dest), err)
	}
	return path, nil
}

func (p *Pipeline) record(ctx context.Context, m *domain.Manifest, stage domain.Stage, name, path string, failure error) error {
	if p.repository == nil {
		return nil
	}
	if err := p.repository.RecordDownload(ctx, m.RunID, stage, name, path, failure); err != nil {
		return fmt.Errorf("persist %s %s: %w", stage, name, err)
	}
	return nil
}

// handleFailure returns the error to abort with, or nil after recording a skipped unit.
func (p *Pipeline) handleFailure(m *domain.Manifest, stage domain.Stage, unit string, err error) error {
	if p.policy(stage) == domain.PolicySkip {
		m.Fail(stage, unit, err)
		p.logger.Warn("unit skipped", "stage", stage, "unit", unit, "error", err)
		return nil
	}
	return fmt.Errorf("%s %s: %w", stage, unit, err)
}

func (p *Pipeline) policy(stage domain.Stage) domain.FailurePolicy {
	if pol, ok := p.settings.Policies[stage]; ok {
		return pol
	}
	return domain.PolicyAbort
}
