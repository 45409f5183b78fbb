package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"PfamSurvey/internal/config"
	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/infrastructure/storage"
	"PfamSurvey/internal/infrastructure/table"
	"PfamSurvey/internal/logging"
)

const fakeSearch = `#!/bin/sh
echo "WBGene00001 - q1 - 1e-10 50.0 0.1 1e-10 49.0 0.1 1.0 1 0 0 1 1 1 1 -" > "$2"
`

func gzipped(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	sequence := gzipped(t, ">seq1\nMKVLAAGIV\n")
	profile := gzipped(t, "HMMER3/f [3.3 | Nov 2019]\nNAME  Sdh5\n//\n")

	mux := http.NewServeMux()
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `<html><body>
<a href="worm1.protein.fa.gz">worm1</a>
<a href="/species/worm2.protein.fa.gz">worm2</a>
<a href="worm1.genomic.fa.gz">genome</a>
</body></html>`)
	})
	mux.HandleFunc("/worm1.protein.fa.gz", func(w http.ResponseWriter, _ *http.Request) { w.Write(sequence) })
	mux.HandleFunc("/species/worm2.protein.fa.gz", func(w http.ResponseWriter, _ *http.Request) { w.Write(sequence) })
	mux.HandleFunc("/pfam/PF00001", func(w http.ResponseWriter, _ *http.Request) { w.Write(profile) })

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, srv *httptest.Server) config.Config {
	t.Helper()
	dir := t.TempDir()

	bin := filepath.Join(dir, "fake-hmmsearch")
	if err := os.WriteFile(bin, []byte(fakeSearch), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	accessions := filepath.Join(dir, "accessions.tsv")
	if err := os.WriteFile(accessions, []byte("Accession\tName\nPF00001\tSdh5\nIPR000001\tother\n"), 0o644); err != nil {
		t.Fatalf("write table: %v", err)
	}

	return config.Config{
		WorkDir: filepath.Join(dir, "work"),
		Harvest: config.HarvestConfig{
			Sources:        []config.SourceConfig{{Name: "test", Scanner: "anchors", URL: srv.URL + "/index.html", Suffix: "protein.fa.gz"}},
			SampleSize:     2,
			Seed:           1,
			ChunkSize:      16,
			TimeoutSeconds: 10,
		},
		Profiles: config.ProfileConfig{
			Table:       accessions,
			Column:      "Accession",
			Prefix:      "PF",
			URLTemplate: srv.URL + "/pfam/" + domain.AccessionPlaceholder,
			Retriever:   "http",
		},
		Search: config.SearchConfig{
			Binary:            bin,
			EValue:            0.1,
			ScriptPath:        "hmmer_script.sh",
			LogPath:           "hmmer_script.log",
			Shell:             "/bin/sh",
			SequenceExtension: ".fa",
		},
		Aggregate: config.AggregateConfig{Output: "summary_table.tsv", PrefixLength: 3},
		Report:    config.ReportConfig{Dir: "charts", Format: "svg"},
		Storage:   config.StorageConfig{Path: "ledger.db"},
	}
}

func newTestApp(t *testing.T, cfg config.Config) *Application {
	t.Helper()
	a, err := New(context.Background(), cfg, logging.NewTo(io.Discard, "error", "text"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestApplicationStagesChainThroughManifest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newTestApp(t, testConfig(t, newTestServer(t)))

	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{"harvest", a.Harvest},
		{"fetch", a.Fetch},
		{"search", a.Search},
		{"aggregate", a.Aggregate},
		{"report", a.Report},
	}
	for _, s := range stages {
		if err := s.run(ctx); err != nil {
			t.Fatalf("%s returned error: %v", s.name, err)
		}
	}

	m, err := a.store.Load()
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if len(m.Sequences) != 2 || len(m.Profiles) != 1 || len(m.CompletedPairs()) != 2 {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if filepath.Base(m.Pairs[0].OutputPath) != "PF00001-worm1.protein.out" && filepath.Base(m.Pairs[1].OutputPath) != "PF00001-worm1.protein.out" {
		t.Fatalf("unexpected outputs %+v", m.Pairs)
	}

	rows, err := table.LoadSummary(m.SummaryPath)
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if len(rows) != 2 || rows[0].Accession != "PF00001" || rows[0].QueryName != "q1" || rows[0].GroupKey != "WBG" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if len(m.Charts) != 2 {
		t.Fatalf("expected 2 charts, got %v", m.Charts)
	}
	for _, chart := range m.Charts {
		if _, err := os.Stat(chart); err != nil {
			t.Fatalf("chart %s missing: %v", chart, err)
		}
	}

	st, err := a.Status(ctx, "")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	want := RunStatus{RunID: m.RunID, Status: storage.StatusCompleted, Harvested: 2, Fetched: 1, Hits: 2}
	if st != want {
		t.Fatalf("unexpected status: got %+v want %+v", st, want)
	}
}

func TestStatusNeedsLedger(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, newTestServer(t))
	cfg.Storage.Path = ""
	a := newTestApp(t, cfg)
	if _, err := a.Status(context.Background(), "any"); err == nil {
		t.Fatal("expected error without a run ledger")
	}
}

func TestApplicationRun(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, newTestServer(t))
	cfg.Report.Skip = true
	a := newTestApp(t, cfg)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	m, err := a.store.Load()
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if len(m.CompletedPairs()) != 2 || len(m.Charts) != 0 {
		t.Fatalf("unexpected manifest %+v", m)
	}
}

func TestApplicationSearchNeedsManifest(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(t, newTestServer(t)))
	if err := a.Search(context.Background()); err == nil {
		t.Fatal("expected error without a manifest")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, newTestServer(t))
	cfg.Harvest.SampleSize = 0
	if _, err := New(context.Background(), cfg, logging.NewTo(io.Discard, "error", "text")); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestGrouper(t *testing.T) {
	t.Parallel()

	g := grouper(config.AggregateConfig{PrefixLength: 3})
	if got := g.Key("WBGene00001"); got != "WBG" {
		t.Fatalf("unexpected prefix key %s", got)
	}

	g = grouper(config.AggregateConfig{PrefixLength: 3, GroupLabels: map[string]string{"WBGene": "WormBase"}})
	if got := g.Key("WBGene00001"); got != "WormBase" {
		t.Fatalf("unexpected mapped key %s", got)
	}
	if got := g.Key("CBG12345"); got != "CBG" {
		t.Fatalf("unexpected fallback key %s", got)
	}
}
