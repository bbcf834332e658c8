// Package pathfinder implements the bounded breadth-first traversal over
// the association graph that backs FindPaths (§4.8, §6.1 0x24). It reads
// only from a snapshot and never mutates anything.
package pathfinder

import (
	"sort"

	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
)

// Options configures one FindPaths call (§4.8 tunables).
type Options struct {
	MaxDepth         int     // bound on hops from source to target
	MaxFanout        int     // candidate edges explored per node per level; 0 = unbounded
	DecayPerHop      float32 // geometric confidence decay applied per edge
	ConfidenceFloor  float32 // paths scoring below this are pruned
	MaxPaths         int     // result cap
	DiversityOverlap float32 // max fraction of shared intermediate nodes between two kept paths
}

// DefaultOptions matches the spec's stated defaults (§4.8).
func DefaultOptions() Options {
	return Options{
		MaxDepth: 5, MaxFanout: 8, DecayPerHop: 0.85,
		ConfidenceFloor: 0.01, MaxPaths: 5, DiversityOverlap: 0.7,
	}
}

// Edge is one hop of a Path, annotated with the association that produced
// it (§4.8 "per-edge metadata").
type Edge struct {
	From, To types.ConceptID
	Assoc    *types.Association
}

// Path is a sequence of concepts joined by associations, with an
// aggregated confidence (§3.1 GLOSSARY "Path").
type Path struct {
	Nodes      []types.ConceptID
	Edges      []Edge
	Confidence float32
}

type frame struct {
	node       types.ConceptID
	path       []types.ConceptID
	edges      []Edge
	confidence float32
	visited    map[types.ConceptID]struct{}
}

// FindPaths searches snap for up to opts.MaxPaths routes from source to
// target, scored by the product of edge weights times a per-hop geometric
// decay, diversified so no two kept paths overshare intermediate nodes
// (§4.8, §8 scenario 3).
func FindPaths(snap *snapshot.Snapshot, source, target types.ConceptID, opts Options) []Path {
	if opts.MaxDepth <= 0 {
		opts = DefaultOptions()
	}

	var found []Path
	start := frame{
		node: source, path: []types.ConceptID{source}, confidence: 1.0,
		visited: map[types.ConceptID]struct{}{source: {}},
	}
	queue := []frame{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.node == target && len(cur.path) > 1 {
			found = append(found, Path{Nodes: cur.path, Edges: cur.edges, Confidence: cur.confidence})
			continue
		}
		if len(cur.path)-1 >= opts.MaxDepth {
			continue
		}

		candidates := outgoing(snap, cur.node)
		if opts.MaxFanout > 0 && len(candidates) > opts.MaxFanout {
			sort.Slice(candidates, func(i, j int) bool { return candidates[i].Weight > candidates[j].Weight })
			candidates = candidates[:opts.MaxFanout]
		}

		for _, edge := range candidates {
			if _, seen := cur.visited[edge.To]; seen {
				continue // cycle detection: never revisit a node within one path
			}
			conf := cur.confidence * edge.Assoc.Weight * opts.DecayPerHop
			if conf < opts.ConfidenceFloor {
				continue
			}
			nextVisited := make(map[types.ConceptID]struct{}, len(cur.visited)+1)
			for k := range cur.visited {
				nextVisited[k] = struct{}{}
			}
			nextVisited[edge.To] = struct{}{}

			queue = append(queue, frame{
				node:       edge.To,
				path:       append(append([]types.ConceptID(nil), cur.path...), edge.To),
				edges:      append(append([]Edge(nil), cur.edges...), edge),
				confidence: conf,
				visited:    nextVisited,
			})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Confidence > found[j].Confidence })
	return diversify(found, opts)
}

// outgoing collects every outgoing edge from id across all association
// types, since FindPaths is not restricted to one relationship kind.
func outgoing(snap *snapshot.Snapshot, id types.ConceptID) []Edge {
	var out []Edge
	for t := types.AssocSemantic; t <= types.AssocAnalogical; t++ {
		for _, n := range snap.GetNeighbors(id, t, 0) {
			out = append(out, Edge{From: id, To: n.Target, Assoc: n.Association})
		}
	}
	return out
}

// diversify keeps paths in descending confidence order, skipping any
// candidate that shares more than opts.DiversityOverlap of its
// intermediate nodes with an already-kept path (§4.8 "Diversification").
func diversify(candidates []Path, opts Options) []Path {
	var kept []Path
	for _, cand := range candidates {
		if opts.MaxPaths > 0 && len(kept) >= opts.MaxPaths {
			break
		}
		mid := intermediates(cand)
		if len(mid) == 0 {
			kept = append(kept, cand)
			continue
		}
		overlaps := false
		for _, k := range kept {
			kmid := intermediates(k)
			if shareFraction(mid, kmid) > opts.DiversityOverlap {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}
	return kept
}

// intermediates returns a path's nodes excluding its source and target
// endpoints, the set Diversification compares across candidates.
func intermediates(p Path) map[types.ConceptID]struct{} {
	if len(p.Nodes) <= 2 {
		return nil
	}
	set := make(map[types.ConceptID]struct{}, len(p.Nodes)-2)
	for _, n := range p.Nodes[1 : len(p.Nodes)-1] {
		set[n] = struct{}{}
	}
	return set
}

func shareFraction(a, b map[types.ConceptID]struct{}) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for n := range a {
		if _, ok := b[n]; ok {
			shared++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float32(shared) / float32(smaller)
}
