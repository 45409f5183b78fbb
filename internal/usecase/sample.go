package usecase

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"PfamSurvey/internal/domain"
)

// Sample picks n distinct links uniformly at random without replacement.
// The input slice is not modified.
func Sample(links []domain.SequenceLink, n int, rng *rand.Rand) ([]domain.SequenceLink, error) {
	if n < 0 {
		return nil, fmt.Errorf("sample size %d: %w", n, domain.ErrSelection)
	}
	if len(links) < n {
		return nil, fmt.Errorf("want %d links, found %d: %w", n, len(links), domain.ErrSelection)
	}

	pool := make([]domain.SequenceLink, len(links))
	copy(pool, links)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n], nil
}

// NewRand returns a generator seeded from seed, or from the runtime when seed is 0.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// FilterAccessions keeps values starting with prefix, in order.
// With dedupe set, repeated accessions are dropped after their first occurrence.
func FilterAccessions(values []string, prefix string, dedupe bool) []string {
	var kept []string
	seen := map[string]struct{}{}
	for _, v := range values {
		if !strings.HasPrefix(v, prefix) {
			continue
		}
		if dedupe {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
		}
		kept = append(kept, v)
	}
	return kept
}
