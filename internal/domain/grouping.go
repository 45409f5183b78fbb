package domain

import (
	"sort"
	"strings"
)

// Grouper derives the grouping key shown in reports from a target name.
type Grouper interface {
	Key(targetName string) string
}

// PrefixGrouper keys targets by their first N characters.
type PrefixGrouper int

// Key returns the first N runes, or the whole name if shorter.
func (g PrefixGrouper) Key(targetName string) string {
	n := int(g)
	if n <= 0 {
		return targetName
	}
	runes := []rune(targetName)
	if len(runes) <= n {
		return targetName
	}
	return string(runes[:n])
}

// MappingGrouper maps identifier prefixes to labels and falls back otherwise.
// The longest matching prefix wins.
type MappingGrouper struct {
	prefixes []string
	labels   map[string]string
	fallback Grouper
}

// NewMappingGrouper builds a grouper over prefix -> label pairs.
func NewMappingGrouper(labels map[string]string, fallback Grouper) *MappingGrouper {
	prefixes := make([]string, 0, len(labels))
	for p := range labels {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	return &MappingGrouper{prefixes: prefixes, labels: labels, fallback: fallback}
}

// Key returns the mapped label or the fallback key.
func (g *MappingGrouper) Key(targetName string) string {
	for _, p := range g.prefixes {
		if strings.HasPrefix(targetName, p) {
			return g.labels[p]
		}
	}
	if g.fallback == nil {
		return targetName
	}
	return g.fallback.Key(targetName)
}
