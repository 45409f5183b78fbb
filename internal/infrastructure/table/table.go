// Package table reads and writes the tab-separated files the pipeline consumes and produces.
package table

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/ports"
)

// SummaryHeader is the column set of summary_table.tsv.
var SummaryHeader = []string{"Accession", "Query_Name", "Target_Name", "E-value", "Score", "Target_Name_Short"}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr
}

// ReadColumn returns every non-empty value of the named column.
func ReadColumn(r io.Reader, column string) ([]string, error) {
	cr := newReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty table")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", column)
	}

	var values []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if idx >= len(rec) {
			continue
		}
		if v := strings.TrimSpace(rec[idx]); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

// AccessionFile loads accessions from a local results export.
type AccessionFile struct {
	path   string
	column string
}

var _ ports.AccessionSource = (*AccessionFile)(nil)

// NewAccessionFile reads column from the TSV at path.
func NewAccessionFile(path, column string) *AccessionFile {
	return &AccessionFile{path: path, column: column}
}

// Accessions returns every accession in file order.
func (a *AccessionFile) Accessions(ctx context.Context) ([]string, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("open accession table: %w", err)
	}
	defer f.Close()

	values, err := ReadColumn(f, a.column)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.path, err)
	}
	return values, nil
}

// WriteSummaryTo encodes rows with SummaryHeader.
func WriteSummaryTo(w io.Writer, rows []domain.SummaryRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(SummaryHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		rec := []string{
			row.Accession,
			row.QueryName,
			row.TargetName,
			strconv.FormatFloat(row.EValue, 'g', -1, 64),
			strconv.FormatFloat(row.Score, 'g', -1, 64),
			row.GroupKey,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSummary decodes a table written by WriteSummaryTo.
func ReadSummary(r io.Reader) ([]domain.SummaryRow, error) {
	cr := newReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(SummaryHeader) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(SummaryHeader), len(header))
	}
	for i, name := range SummaryHeader {
		if header[i] != name {
			return nil, fmt.Errorf("column %d: expected %q, got %q", i+1, name, header[i])
		}
	}

	var rows []domain.SummaryRow
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) != len(SummaryHeader) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(SummaryHeader), len(rec))
		}
		evalue, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: E-value: %w", line, err)
		}
		score, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: Score: %w", line, err)
		}
		rows = append(rows, domain.SummaryRow{
			Hit: domain.Hit{
				Accession:  rec[0],
				QueryName:  rec[1],
				TargetName: rec[2],
				EValue:     evalue,
				Score:      score,
			},
			GroupKey: rec[5],
		})
	}
	return rows, nil
}

// SummaryFile persists the aggregate table on disk.
type SummaryFile struct{}

var _ ports.SummaryWriter = SummaryFile{}

// WriteSummary creates or truncates path.
func (SummaryFile) WriteSummary(path string, rows []domain.SummaryRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	if err := WriteSummaryTo(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadSummary reads a summary table from path.
func LoadSummary(path string) ([]domain.SummaryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open summary: %w", err)
	}
	defer f.Close()

	rows, err := ReadSummary(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
