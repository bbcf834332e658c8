package maintenance

import (
	"context"

	"github.com/synapsedb/synapse/pkg/shard"
	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
)

// NearMiss is a pair of concepts whose vectors are highly similar but
// which have no recorded association, surfaced for the reasoning layer to
// consider linking (§4.9 "Gap detection", §4.C).
type NearMiss struct {
	A, B       types.ConceptID
	Similarity float32
}

// GapReport is one shard's gap-detection pass result.
type GapReport struct {
	ShardID   int
	Isolated  []types.ConceptID
	NearMisses []NearMiss
}

// runGapDetection scans every shard for isolated concepts and near-miss
// vector pairs and publishes both as subscription events rather than
// writing them back into the graph — gap reports are advisory input for
// the reasoning layer named as an external collaborator in §1, not a
// mutation this engine should make unprompted.
func (s *Scheduler) runGapDetection(ctx context.Context) {
	for _, sh := range s.shards {
		report := detectGaps(sh, s.opts.GapSimilarity)
		if len(report.Isolated) == 0 && len(report.NearMisses) == 0 {
			continue
		}
		s.log.Info().Int("shard", report.ShardID).
			Int("isolated", len(report.Isolated)).
			Int("near_miss", len(report.NearMisses)).
			Msg("gap detection pass")
		for _, id := range report.Isolated {
			s.publish(Event{ConceptID: id, Kind: EventGapIsolated})
		}
		for _, nm := range report.NearMisses {
			s.publish(Event{ConceptID: nm.A, RelatedID: nm.B, Kind: EventGapNearMiss})
		}
	}
}

func detectGaps(sh *shard.Shard, similarityFloor float32) GapReport {
	snap := sh.Snapshot()
	report := GapReport{ShardID: sh.ID}

	snap.AllConcepts(func(c *types.Concept) bool {
		if isIsolated(snap, c.ID) {
			report.Isolated = append(report.Isolated, c.ID)
		}
		return false
	})

	index := sh.Index()
	snap.AllConcepts(func(c *types.Concept) bool {
		if c.Vector == nil || !c.Indexed {
			return false
		}
		results, err := index.Search(c.Vector, 6)
		if err != nil {
			return false
		}
		for _, r := range results {
			if r.ID == c.ID {
				continue
			}
			similarity := 1 - r.Distance
			if similarity < similarityFloor {
				continue
			}
			if snap.HasAnyAssociation(c.ID, r.ID) {
				continue
			}
			// Report each unordered pair once: only from the numerically
			// smaller id's perspective.
			if c.ID < r.ID {
				report.NearMisses = append(report.NearMisses, NearMiss{A: c.ID, B: r.ID, Similarity: similarity})
			}
		}
		return false
	})

	return report
}

func isIsolated(snap *snapshot.Snapshot, id types.ConceptID) bool {
	for t := types.AssocSemantic; t <= types.AssocAnalogical; t++ {
		if len(snap.GetNeighbors(id, t, 1)) > 0 {
			return false
		}
		if len(snap.ReverseNeighbors(id, t, 1)) > 0 {
			return false
		}
	}
	return true
}
