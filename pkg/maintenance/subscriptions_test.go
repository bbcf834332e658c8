package maintenance

import "testing"

func TestHubPublishDeliversToSubscriber(t *testing.T) {
	h := NewHub(4)
	ch := h.Subscribe("a")

	h.Publish(Event{Kind: EventConceptLearned, ConceptID: 7})

	select {
	case ev := <-ch:
		if ev.ConceptID != 7 {
			t.Fatalf("got concept id %d, want 7", ev.ConceptID)
		}
	default:
		t.Fatal("expected an event to be delivered")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(4)
	ch := h.Subscribe("a")
	h.Unsubscribe("a")

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestHubPublishDropsOldestWhenSubscriberBufferFull(t *testing.T) {
	h := NewHub(1)
	ch := h.Subscribe("a")

	h.Publish(Event{ConceptID: 1})
	h.Publish(Event{ConceptID: 2}) // buffer of 1: this should evict the first

	ev := <-ch
	if ev.ConceptID != 2 {
		t.Fatalf("expected the newest event to survive back-pressure, got %d", ev.ConceptID)
	}
	if h.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", h.Dropped())
	}
}

func TestHubPublishDeliversToEverySubscriber(t *testing.T) {
	h := NewHub(4)
	chA := h.Subscribe("a")
	chB := h.Subscribe("b")

	h.Publish(Event{ConceptID: 1})

	<-chA
	select {
	case <-chB:
	default:
		t.Fatal("expected both subscribers to receive the broadcast event")
	}
}
