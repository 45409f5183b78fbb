package hmmer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTable = `#                                                               --- full sequence ---- --- best 1 domain ---- --- domain number estimation ----
# target name        accession  query name           accession    E-value  score  bias   E-value  score  bias   exp reg clu  ov env dom rep inc description of target
#------------------- ---------- -------------------- ---------- --------- ------ ----- --------- ------ -----   --- --- --- --- --- --- --- --- ---------------------
ACAC_0000101001-mRNA-1 -          Sdh5                 PF03937.19   1.3e-25   89.9   0.1   1.6e-25   89.6   0.1   1.1   1   0   0   1   1   1   1 succinate dehydrogenase assembly factor
Bm1_12345            -          Sdh5                 PF03937.19     0.042   12.0   0.0     0.051   11.7   0.0   1.1   1   0   0   1   1   1   0 -
#
# Program:         hmmsearch
# Pipeline mode:   SEARCH
`

func TestParseTable(t *testing.T) {
	t.Parallel()

	results, err := ParseTable(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("ParseTable error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 query, got %d", len(results))
	}

	q := results[0]
	if q.ID != "Sdh5" || q.Accession != "PF03937.19" {
		t.Fatalf("unexpected query %s/%s", q.ID, q.Accession)
	}
	if len(q.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(q.Hits))
	}

	first := q.Hits[0]
	if first.TargetName != "ACAC_0000101001-mRNA-1" {
		t.Fatalf("unexpected target %s", first.TargetName)
	}
	if first.TargetAccession != "" {
		t.Fatalf("dash accession should be empty, got %q", first.TargetAccession)
	}
	if first.EValue != 1.3e-25 || first.Score != 89.9 {
		t.Fatalf("unexpected full-sequence values %g/%g", first.EValue, first.Score)
	}
	if first.DomainEValue != 1.6e-25 || first.DomainScore != 89.6 {
		t.Fatalf("unexpected domain values %g/%g", first.DomainEValue, first.DomainScore)
	}
	if first.Description != "succinate dehydrogenase assembly factor" {
		t.Fatalf("unexpected description %q", first.Description)
	}
	if q.Hits[1].Description != "" {
		t.Fatalf("dash description should be empty")
	}
}

func TestParseTableGroupsConsecutiveQueries(t *testing.T) {
	t.Parallel()

	table := strings.Join([]string{
		"t1 - qA - 1e-5 20 0 1e-5 20 0 1 1 0 0 1 1 1 1 -",
		"t2 - qA - 1e-4 18 0 1e-4 18 0 1 1 0 0 1 1 1 1 -",
		"t3 - qB - 1e-3 15 0 1e-3 15 0 1 1 0 0 1 1 1 1 -",
	}, "\n")

	results, err := ParseTable(strings.NewReader(table))
	if err != nil {
		t.Fatalf("ParseTable error: %v", err)
	}
	if len(results) != 2 || len(results[0].Hits) != 2 || len(results[1].Hits) != 1 {
		t.Fatalf("unexpected grouping: %+v", results)
	}
}

func TestParseTableEmpty(t *testing.T) {
	t.Parallel()

	results, err := ParseTable(strings.NewReader("# only comments\n#\n"))
	if err != nil {
		t.Fatalf("ParseTable error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestParseTableMalformed(t *testing.T) {
	t.Parallel()

	if _, err := ParseTable(strings.NewReader("t1 - q - 1e-5 20\n")); err == nil {
		t.Fatalf("expected error for short row")
	}
	bad := "t1 - q - nope 20 0 1e-5 20 0 1 1 0 0 1 1 1 1 -\n"
	_, err := ParseTable(strings.NewReader(bad))
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line-numbered error, got %v", err)
	}
}

func TestTableParserParseFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "PF03937-worm1.out")
	if err := os.WriteFile(path, []byte(sampleTable), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	results, err := TableParser{}.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if len(results) != 1 || len(results[0].Hits) != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
}
