package hmmer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/ports"
)

// tblout has 18 fixed columns followed by a free-text description.
const fixedColumns = 18

// ParseTable reads hmmsearch --tblout output. Consecutive rows sharing a
// query name form one QueryResult, in file order.
func ParseTable(r io.Reader) ([]domain.QueryResult, error) {
	var results []domain.QueryResult

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		cols := strings.Fields(text)
		if len(cols) < fixedColumns {
			return nil, fmt.Errorf("line %d: expected at least %d columns, got %d", line, fixedColumns, len(cols))
		}

		hit, err := parseHit(cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		queryID, queryAcc := cols[2], accession(cols[3])
		if n := len(results); n == 0 || results[n-1].ID != queryID {
			results = append(results, domain.QueryResult{ID: queryID, Accession: queryAcc})
		}
		last := &results[len(results)-1]
		last.Hits = append(last.Hits, hit)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	return results, nil
}

func parseHit(cols []string) (domain.TableHit, error) {
	var hit domain.TableHit
	floats := []struct {
		name string
		col  int
		dst  *float64
	}{
		{"full E-value", 4, &hit.EValue},
		{"full score", 5, &hit.Score},
		{"full bias", 6, &hit.Bias},
		{"domain E-value", 7, &hit.DomainEValue},
		{"domain score", 8, &hit.DomainScore},
		{"domain bias", 9, &hit.DomainBias},
	}
	for _, f := range floats {
		v, err := strconv.ParseFloat(cols[f.col], 64)
		if err != nil {
			return domain.TableHit{}, fmt.Errorf("%s %q: %w", f.name, cols[f.col], err)
		}
		*f.dst = v
	}

	hit.TargetName = cols[0]
	hit.TargetAccession = accession(cols[1])
	if len(cols) > fixedColumns {
		hit.Description = strings.Join(cols[fixedColumns:], " ")
		if hit.Description == "-" {
			hit.Description = ""
		}
	}
	return hit, nil
}

func accession(col string) string {
	if col == "-" {
		return ""
	}
	return col
}

// TableParser reads tblout files from disk.
type TableParser struct{}

var _ ports.HitParser = TableParser{}

// ParseFile opens path and parses it.
func (TableParser) ParseFile(path string) ([]domain.QueryResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open search output: %w", err)
	}
	defer f.Close()

	results, err := ParseTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return results, nil
}
