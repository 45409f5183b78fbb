package parser

import (
	"context"
	"fmt"
	"log/slog"

	"PfamSurvey/internal/config"
	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/ports"
	"PfamSurvey/internal/scanner"
)

// IndexSource implements LinkSource via registered scanner strategies.
type IndexSource struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	logger   *slog.Logger
}

var _ ports.LinkSource = (*IndexSource)(nil)

// NewIndexSource wires scanner registry with config-defined index pages.
func NewIndexSource(reg *scanner.Registry, sources []config.SourceConfig, log *slog.Logger) *IndexSource {
	return &IndexSource{
		registry: reg,
		sources:  sources,
		logger:   log,
	}
}

// Links scans every configured index page and merges the distinct links.
func (s *IndexSource) Links(ctx context.Context) ([]domain.SequenceLink, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	var aggregated []domain.SequenceLink
	seen := map[string]struct{}{}
	for _, src := range s.sources {
		s.debug("process source", "source", src.Name, "scanner", src.Scanner, "url", src.URL)
		strategy, err := s.registry.Resolve(src.Scanner)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}

		links, err := strategy.Scan(ctx, scanner.Request{
			Name:     src.Name,
			IndexURL: src.URL,
			Suffix:   src.Suffix,
			Options:  src.Options,
		})
		if err != nil {
			return nil, fmt.Errorf("scan source %s: %w", src.Name, err)
		}

		for _, link := range links {
			if _, ok := seen[link.URL]; ok {
				continue
			}
			seen[link.URL] = struct{}{}
			aggregated = append(aggregated, link)
		}
		s.debug("source produced links", "source", src.Name, "count", len(links))
	}

	return aggregated, nil
}

func (s *IndexSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
