package maintenance

import (
	"context"
	"fmt"

	"github.com/synapsedb/synapse/pkg/shard"
	"github.com/synapsedb/synapse/pkg/types"
)

// runHealth writes engine health as ordinary concepts through the normal
// learn_concept path, enabling reasoning over operational state (§4.9
// "Health metrics", §4.C). A concept's content is "dimension=value" and
// its id is the hash of that content, so a value seen before reinforces
// the existing concept while every new value of a dimension is learned
// as a concept of its own.
func (s *Scheduler) runHealth(ctx context.Context) {
	for _, sh := range s.shards {
		stats := sh.Stats()

		s.reportMetric(sh, "engine.health.queue_depth", fmt.Sprintf("%d", stats.QueueDepth))
		s.reportMetric(sh, "engine.health.sequence", fmt.Sprintf("%d", stats.Sequence))
		s.reportMetric(sh, "engine.health.concepts", fmt.Sprintf("%d", stats.Concepts))
		s.reportMetric(sh, "engine.health.associations", fmt.Sprintf("%d", stats.Associations))
		if stats.ANNDegraded {
			s.reportMetric(sh, "engine.health.ann_mode", "degraded")
		} else {
			s.reportMetric(sh, "engine.health.ann_mode", "nominal")
		}

		if s.metrics != nil {
			s.metrics.QueueDepth.Set(float64(stats.QueueDepth))
			s.metrics.SnapshotVersion.Set(float64(stats.Sequence))
			if stats.ANNDegraded {
				s.metrics.ANNDegraded.Set(1)
			} else {
				s.metrics.ANNDegraded.Set(0)
			}
		}
	}
}

func (s *Scheduler) reportMetric(sh *shard.Shard, dimension, value string) {
	content := []byte(fmt.Sprintf("%s=%s", dimension, value))
	if _, err := sh.WritePlane().LearnConcept(content, nil, 1.0, 1.0, types.SemanticDefinitional); err != nil {
		s.log.Warn().Err(err).Str("dimension", dimension).Msg("health metric write failed")
	}
}
