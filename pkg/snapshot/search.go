package snapshot

import (
	"sort"
	"strings"

	"github.com/synapsedb/synapse/pkg/types"
)

// ScoredConcept is one text_search hit (§4.2).
type ScoredConcept struct {
	ID    types.ConceptID
	Score float32
}

// TextSearch scores concepts by token-overlap x strength and returns the
// top k (§4.2 "uses the token index, merges candidate lists, scores").
func (s *Snapshot) TextSearch(tokens []string, k int) []ScoredConcept {
	overlap := make(map[types.ConceptID]int)
	for _, raw := range tokens {
		tok := strings.ToLower(raw)
		for _, id := range s.TokensFor(tok) {
			overlap[id]++
		}
	}

	scored := make([]ScoredConcept, 0, len(overlap))
	for id, count := range overlap {
		c, ok := s.GetConcept(id)
		if !ok {
			continue
		}
		scored = append(scored, ScoredConcept{
			ID:    id,
			Score: float32(count) * c.Strength,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			return scored[i].ID < scored[j].ID
		}
		return scored[i].Score > scored[j].Score
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
