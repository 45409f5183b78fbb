package report

import (
	"sort"

	"PfamSurvey/internal/domain"
)

// GroupCounts is the hit frequency matrix behind the stacked bar chart.
type GroupCounts struct {
	Accessions []string
	Groups     []string
	// Counts[g][a] is the number of hits of group g against accession a.
	Counts [][]int
}

// CountByGroup counts rows per (accession, group key); both axes are sorted.
func CountByGroup(rows []domain.SummaryRow) GroupCounts {
	accessions := distinct(rows, func(r domain.SummaryRow) string { return r.Accession })
	groups := distinct(rows, func(r domain.SummaryRow) string { return r.GroupKey })

	aIdx := indexOf(accessions)
	gIdx := indexOf(groups)

	counts := make([][]int, len(groups))
	for i := range counts {
		counts[i] = make([]int, len(accessions))
	}
	for _, r := range rows {
		counts[gIdx[r.GroupKey]][aIdx[r.Accession]]++
	}

	return GroupCounts{Accessions: accessions, Groups: groups, Counts: counts}
}

// EValuesByGroup collects E-values per (accession, group key).
func EValuesByGroup(rows []domain.SummaryRow) map[string]map[string][]float64 {
	out := map[string]map[string][]float64{}
	for _, r := range rows {
		byGroup, ok := out[r.Accession]
		if !ok {
			byGroup = map[string][]float64{}
			out[r.Accession] = byGroup
		}
		byGroup[r.GroupKey] = append(byGroup[r.GroupKey], r.EValue)
	}
	return out
}

func distinct(rows []domain.SummaryRow, key func(domain.SummaryRow) string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range rows {
		k := key(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func indexOf(values []string) map[string]int {
	idx := make(map[string]int, len(values))
	for i, v := range values {
		idx[v] = i
	}
	return idx
}
