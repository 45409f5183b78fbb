package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"PfamSurvey/internal/config"
	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/scanner"
)

const indexPage = `
<html><body>
  <a href="https://ftp.example.org/species/a/worm_a.protein.fa.gz">worm a</a>
  <a href="/species/b/worm_b.protein.fa.gz">worm b</a>
  <a href="species/c/worm_c.protein.fa.gz">worm c</a>
  <a href="/species/c/worm_c.genomic.fa.gz">genomic</a>
  <a href="/species/d/worm_d.protein.fa.gz?x=1">worm d with query</a>
  <a href="https://ftp.example.org/species/a/worm_a.protein.fa.gz">duplicate</a>
  <a>no href</a>
  <a href="">empty</a>
</body></html>`

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(indexPage))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	base, _ := url.Parse("https://parasite.example.org/ftp.html")

	links := extractLinks(doc, base, "protein.fa.gz")

	want := []domain.SequenceLink{
		{URL: "https://ftp.example.org/species/a/worm_a.protein.fa.gz", Name: "worm_a.protein.fa.gz"},
		{URL: "https://parasite.example.org/species/b/worm_b.protein.fa.gz", Name: "worm_b.protein.fa.gz"},
		{URL: "https://parasite.example.org/species/c/worm_c.protein.fa.gz", Name: "worm_c.protein.fa.gz"},
		{URL: "https://parasite.example.org/species/d/worm_d.protein.fa.gz?x=1", Name: "worm_d.protein.fa.gz"},
	}
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %d: %+v", len(want), len(links), links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Fatalf("link %d: want %+v, got %+v", i, want[i], links[i])
		}
	}
}

func TestAnchorScannerScan(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(indexPage))
	}))
	defer server.Close()

	sc := NewAnchorScanner(server.Client(), nil).WithUserAgent("test-agent")
	links, err := sc.Scan(context.Background(), scanner.Request{
		Name:     "test",
		IndexURL: server.URL + "/ftp.html",
		Suffix:   "protein.fa.gz",
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(links) != 4 {
		t.Fatalf("expected 4 links, got %d", len(links))
	}
	if links[1].URL != server.URL+"/species/b/worm_b.protein.fa.gz" {
		t.Fatalf("relative link not resolved: %s", links[1].URL)
	}
}

func TestAnchorScannerStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sc := NewAnchorScanner(server.Client(), nil)
	_, err := sc.Scan(context.Background(), scanner.Request{IndexURL: server.URL, Suffix: ".gz"})

	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if !strings.Contains(netErr.Status, "503") {
		t.Fatalf("unexpected status: %s", netErr.Status)
	}
}

func TestIndexSourceMergesDistinctLinks(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(indexPage))
	}))
	defer server.Close()

	reg := scanner.NewRegistry()
	reg.Register(NewAnchorScanner(server.Client(), nil))

	src := NewIndexSource(reg, []config.SourceConfig{
		{Name: "one", Scanner: "anchors", URL: server.URL + "/ftp.html", Suffix: "protein.fa.gz"},
		{Name: "two", Scanner: "anchors", URL: server.URL + "/ftp.html", Suffix: "protein.fa.gz"},
	}, nil)

	links, err := src.Links(context.Background())
	if err != nil {
		t.Fatalf("Links error: %v", err)
	}
	if len(links) != 4 {
		t.Fatalf("expected 4 distinct links, got %d", len(links))
	}
}

func TestIndexSourceUnknownScanner(t *testing.T) {
	t.Parallel()

	src := NewIndexSource(scanner.NewRegistry(), []config.SourceConfig{
		{Name: "one", Scanner: "nope", URL: "http://127.0.0.1", Suffix: ".gz"},
	}, nil)

	if _, err := src.Links(context.Background()); err == nil {
		t.Fatalf("expected error for unknown scanner")
	}
}
