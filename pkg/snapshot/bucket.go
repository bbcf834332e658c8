package snapshot

import "github.com/synapsedb/synapse/pkg/types"

// adjacencyBucket holds one (source, type) bucket's edges in insertion
// order (§4.2 "order is insertion order within a reconciliation batch").
// Like idSet, updates replace the bucket wholesale.
type adjacencyBucket struct {
	order []types.ConceptID
	byKey map[types.ConceptID]*types.Association
}

func newAdjacencyBucket() *adjacencyBucket {
	return &adjacencyBucket{byKey: make(map[types.ConceptID]*types.Association)}
}

// with returns a new bucket with assoc upserted under its target id.
func (b *adjacencyBucket) with(target types.ConceptID, assoc *types.Association) *adjacencyBucket {
	if b == nil {
		b = newAdjacencyBucket()
	}
	nb := &adjacencyBucket{
		order: make([]types.ConceptID, len(b.order)),
		byKey: make(map[types.ConceptID]*types.Association, len(b.byKey)+1),
	}
	copy(nb.order, b.order)
	for k, v := range b.byKey {
		nb.byKey[k] = v
	}
	if _, existed := nb.byKey[target]; !existed {
		nb.order = append(nb.order, target)
	}
	nb.byKey[target] = assoc
	return nb
}

func (b *adjacencyBucket) slice(limit int) []NeighborEdge {
	if b == nil {
		return nil
	}
	out := make([]NeighborEdge, 0, len(b.order))
	for _, target := range b.order {
		assoc := b.byKey[target]
		if assoc == nil || assoc.Deleted {
			continue
		}
		out = append(out, NeighborEdge{Target: target, Association: assoc})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
