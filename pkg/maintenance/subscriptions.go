package maintenance

import (
	"sync"

	"github.com/synapsedb/synapse/pkg/types"
)

// EventKind classifies a subscription event (§4.C "given a concrete
// transport").
type EventKind uint8

const (
	EventConceptLearned EventKind = iota + 1
	EventConceptReinforced
	EventAssociationLearned
	EventGapIsolated
	EventGapNearMiss
	EventTriggerFired
)

// Event is one notification fanned out to subscribers.
type Event struct {
	Kind      EventKind
	ConceptID types.ConceptID
	RelatedID types.ConceptID
	Sequence  types.Sequence
}

// Hub is an in-process push-notification fan-out keyed by subscriber id,
// with a bounded buffer per subscriber and drop-oldest back-pressure
// (§4.9 "Subscriptions", §4.C "bounded buffer... drop-oldest, documented
// not silently infinite"). It carries no cross-process transport: a
// subscriber outside this daemon reaches it through the wire protocol's
// own push mechanism, out of scope here.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]chan Event
	bufSize int

	dropped uint64
}

// NewHub creates a hub whose subscriber channels are each buffered to
// bufSize events.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Hub{subs: make(map[string]chan Event), bufSize: bufSize}
}

// Subscribe registers id and returns its event channel. Subscribing the
// same id twice replaces the previous channel.
func (h *Hub) Subscribe(id string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, h.bufSize)
	h.subs[id] = ch
	return ch
}

// Unsubscribe removes id, closing its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// Publish fans ev out to every subscriber. A subscriber whose buffer is
// full has its oldest pending event dropped to make room, rather than
// blocking the publisher or silently discarding the newest event.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
				h.dropped++
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Dropped reports the cumulative number of events evicted by
// back-pressure across all subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// publish fans ev out through the hub, a no-op when subscriptions are
// switched off (§4.9 "individually switchable") so gap detection and
// triggers don't need their own enable check before every event.
func (s *Scheduler) publish(ev Event) {
	if !s.opts.EnableSubscriptions {
		return
	}
	s.hub.Publish(ev)
}
