package maintenance

import (
	"context"
	"math"
	"time"

	"github.com/synapsedb/synapse/pkg/types"
)

// runDecay reduces strength of concepts not accessed within the half-life
// window, multiplying the current strength by 0.5^(time since LastAccessed /
// half-life), reading the snapshot and writing each update back through the
// normal write path (§4.9 "Decay"). Access reinforcement counteracts this
// naturally: a concept reinforced recently has a fresh LastAccessed and so
// decays from a later baseline.
func (s *Scheduler) runDecay(ctx context.Context) {
	now := time.Now()
	halfLifeHours := s.opts.DecayHalfLife.Hours()
	if halfLifeHours <= 0 {
		return
	}

	for _, sh := range s.shards {
		snap := sh.Snapshot()
		snap.AllConcepts(func(c *types.Concept) bool {
			elapsed := now.Sub(c.LastAccessed).Hours()
			if elapsed < halfLifeHours {
				return false
			}
			factor := math.Pow(0.5, elapsed/halfLifeHours)
			next := c.Strength * float32(factor)
			// Skip updates too small to matter; avoids flooding the WAL
			// with decay records for concepts near the strength floor.
			if c.Strength-next < 0.001 {
				return false
			}
			if _, err := sh.WritePlane().DecayConcept(c.ID, next); err != nil {
				s.log.Warn().Err(err).Uint64("concept", uint64(c.ID)).Msg("decay write failed")
			}
			return false
		})
	}
}
