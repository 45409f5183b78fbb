package ports

import (
	"context"

	"PfamSurvey/internal/domain"
)

// LinkSource discovers candidate sequence downloads.
type LinkSource interface {
	Links(ctx context.Context) ([]domain.SequenceLink, error)
}

// Retriever fetches a remote resource into a local file.
type Retriever interface {
	Retrieve(ctx context.Context, url, dest string) error
}

// Decompressor replaces a compressed file with its contents and returns the new path.
type Decompressor interface {
	Decompress(ctx context.Context, path string) (string, error)
}

// AccessionSource loads the profile accessions of interest.
type AccessionSource interface {
	Accessions(ctx context.Context) ([]string, error)
}

// SearchRunner runs the search tool over every pair and marks the ones that produced output.
type SearchRunner interface {
	Run(ctx context.Context, pairs []domain.SearchPair) (RunReport, error)
}

// RunReport describes one search execution.
type RunReport struct {
	ScriptPath string
	Pairs      []domain.SearchPair
	Err        error
}

// HitParser reads a search output file.
type HitParser interface {
	ParseFile(path string) ([]domain.QueryResult, error)
}

// SummaryWriter persists the aggregate table.
type SummaryWriter interface {
	WriteSummary(path string, rows []domain.SummaryRow) error
}

// ReportRenderer draws charts from the aggregate table and returns the written files.
type ReportRenderer interface {
	Render(rows []domain.SummaryRow, dir string) ([]string, error)
}

// RunRepository records runs, downloads and hits for later inspection.
type RunRepository interface {
	StartRun(ctx context.Context, runID, workDir string) error
	RecordDownload(ctx context.Context, runID string, kind domain.Stage, name, path string, failure error) error
	SaveHits(ctx context.Context, runID string, rows []domain.SummaryRow) error
	FinishRun(ctx context.Context, runID string, runErr error) error
}
