package maintenance

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/synapsedb/synapse/pkg/shard"
	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
)

// rule is a parsed Rule concept: a condition that every concept committed
// since the last pass is tested against, and an action to take on a match
// (§4.9 "Trigger system", §4.C). Content encodes both halves on one line,
// separated by "=>", e.g. "strength>=0.8 => reinforce:0.1" or
// "semantic_type=Goal => notify".
type rule struct {
	id        types.ConceptID
	condField string
	condOp    string
	condValue string
	action    string
	actionArg string
}

// triggerState tracks, per shard, the highest concept-table version the
// trigger job has already evaluated, so each pass only scans newly
// committed concepts instead of the whole graph.
type triggerState struct {
	lastVersion map[int]uint64
}

func newTriggerState() *triggerState {
	return &triggerState{lastVersion: make(map[int]uint64)}
}

// runTriggers loads every Rule concept from each shard's snapshot, parses
// it, and evaluates it against concepts new since the last pass. A rule
// that fails to parse is skipped silently: a malformed Rule concept is a
// data problem for the writer that learned it, not a crash for this job.
func (s *Scheduler) runTriggers(ctx context.Context) {
	for _, sh := range s.shards {
		snap := sh.Snapshot()
		version := uint64(snap.Version)
		last := s.triggerState.lastVersion[sh.ID]
		if version <= last {
			continue
		}

		rules := loadRules(snap)
		if len(rules) == 0 {
			s.triggerState.lastVersion[sh.ID] = version
			continue
		}

		snap.AllConcepts(func(c *types.Concept) bool {
			if c.Semantic == types.SemanticRule {
				return false
			}
			for _, r := range rules {
				if r.matches(c) {
					s.fire(sh, r, c)
				}
			}
			return false
		})

		s.triggerState.lastVersion[sh.ID] = version
	}
}

func loadRules(snap *snapshot.Snapshot) []rule {
	var rules []rule
	for _, id := range snap.BySemanticType(types.SemanticRule) {
		c, ok := snap.GetConcept(id)
		if !ok {
			continue
		}
		if r, ok := parseRule(c.ID, c.Content); ok {
			rules = append(rules, r)
		}
	}
	return rules
}

func parseRule(id types.ConceptID, content []byte) (rule, bool) {
	parts := strings.SplitN(string(content), "=>", 2)
	if len(parts) != 2 {
		return rule{}, false
	}
	cond := strings.TrimSpace(parts[0])
	act := strings.TrimSpace(parts[1])

	var op string
	switch {
	case strings.Contains(cond, ">="):
		op = ">="
	case strings.Contains(cond, "="):
		op = "="
	case strings.Contains(cond, "contains"):
		op = "contains"
	default:
		return rule{}, false
	}

	var field, value string
	if op == "contains" {
		fv := strings.SplitN(cond, "contains", 2)
		if len(fv) != 2 {
			return rule{}, false
		}
		field, value = strings.TrimSpace(fv[0]), strings.TrimSpace(fv[1])
	} else {
		fv := strings.SplitN(cond, op, 2)
		if len(fv) != 2 {
			return rule{}, false
		}
		field, value = strings.TrimSpace(fv[0]), strings.TrimSpace(fv[1])
	}

	r := rule{id: id, condField: field, condOp: op, condValue: value}
	actionParts := strings.SplitN(act, ":", 2)
	r.action = strings.TrimSpace(actionParts[0])
	if len(actionParts) == 2 {
		r.actionArg = strings.TrimSpace(actionParts[1])
	}
	if r.condField == "" || r.action == "" {
		return rule{}, false
	}
	return r, true
}

func (r rule) matches(c *types.Concept) bool {
	switch r.condField {
	case "semantic_type":
		return strings.EqualFold(c.Semantic.String(), r.condValue)
	case "strength":
		return compareFloat(c.Strength, r.condOp, r.condValue)
	case "confidence":
		return compareFloat(c.Confidence, r.condOp, r.condValue)
	case "token":
		return r.condOp == "contains" && bytes.Contains(bytes.ToLower(c.Content), bytes.ToLower([]byte(r.condValue)))
	default:
		return false
	}
}

func compareFloat(v float32, op, target string) bool {
	f, err := strconv.ParseFloat(target, 32)
	if err != nil {
		return false
	}
	want := float32(f)
	switch op {
	case ">=":
		return v >= want
	case "=":
		return v == want
	default:
		return false
	}
}

func (s *Scheduler) fire(sh *shard.Shard, r rule, c *types.Concept) {
	switch r.action {
	case "reinforce":
		fraction := float32(0.1)
		if f, err := strconv.ParseFloat(r.actionArg, 32); err == nil {
			fraction = float32(f)
		}
		next := types.Reinforce(c.Strength, fraction)
		if _, err := sh.WritePlane().DecayConcept(c.ID, next); err != nil {
			s.log.Warn().Err(err).Uint64("concept", uint64(c.ID)).Msg("trigger reinforce failed")
		}
	case "associate":
		target := types.NewConceptID([]byte(r.actionArg))
		if _, err := sh.WritePlane().LearnAssociation(c.ID, target, types.AssocSemantic, 0.5); err != nil {
			s.log.Warn().Err(err).Msg("trigger associate failed")
		}
	case "notify":
		s.publish(Event{ConceptID: c.ID, RelatedID: r.id, Kind: EventTriggerFired})
	}
}
