package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/scanner"
)

const defaultUserAgent = "PfamSurvey/1.0"

// AnchorScanner fetches an index page and keeps the hyperlinks ending in a suffix.
type AnchorScanner struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewAnchorScanner wires an HTTP client; a nil client gets a 30s timeout.
func NewAnchorScanner(client *http.Client, log *slog.Logger) *AnchorScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &AnchorScanner{client: client, userAgent: defaultUserAgent, logger: log}
}

// WithUserAgent overrides the User-Agent header sent with index requests.
func (a *AnchorScanner) WithUserAgent(ua string) *AnchorScanner {
	if ua != "" {
		a.userAgent = ua
	}
	return a
}

// Name identifies the strategy inside the registry.
func (a *AnchorScanner) Name() string {
	return "anchors"
}

// Scan returns the distinct links on the index page whose path ends with req.Suffix, in document order.
func (a *AnchorScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.SequenceLink, error) {
	if req.Suffix == "" {
		return nil, fmt.Errorf("no suffix provided for source %s", req.Name)
	}

	base, err := url.Parse(req.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("invalid index url %s: %w", req.IndexURL, err)
	}

	doc, err := a.fetchDocument(ctx, req.IndexURL)
	if err != nil {
		return nil, err
	}

	links := extractLinks(doc, base, req.Suffix)
	if a.logger != nil {
		a.logger.Debug("index scanned", "source", req.Name, "url", req.IndexURL, "links", len(links))
	}
	return links, nil
}

func (a *AnchorScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.NetworkError{URL: pageURL, Status: resp.Status}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractLinks(doc *goquery.Document, base *url.URL, suffix string) []domain.SequenceLink {
	var links []domain.SequenceLink
	seen := map[string]struct{}{}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if !strings.HasSuffix(resolved.Path, suffix) {
			return
		}

		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}

		links = append(links, domain.SequenceLink{
			URL:  abs,
			Name: path.Base(resolved.Path),
		})
	})

	return links
}
