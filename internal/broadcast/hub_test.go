package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

// stalledRelay blocks every Publish until released.
type stalledRelay struct {
	release chan struct{}
}

func (r *stalledRelay) Publish(sessionID string, event domain.Event) error {
	<-r.release
	return nil
}

func (r *stalledRelay) Subscribe(sessionID string, handler func(domain.Event)) (func(), error) {
	return func() {}, nil
}

// captureRelay records forwarded events.
type captureRelay struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *captureRelay) Publish(sessionID string, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *captureRelay) Subscribe(sessionID string, handler func(domain.Event)) (func(), error) {
	return func() {}, nil
}

func (r *captureRelay) snapshot() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func TestPublishDeliversInOrder(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub, cancel := hub.Subscribe("s1")
	defer cancel()

	hub.Publish("s1", domain.Event{Type: domain.EventAnswerScored})
	hub.Publish("s1", domain.Event{Type: domain.EventLeaderboardUpdated})
	hub.Publish("s1", domain.Event{Type: domain.EventQuestionAdvanced})

	var lastSeq uint64
	for _, want := range []domain.EventType{domain.EventAnswerScored, domain.EventLeaderboardUpdated, domain.EventQuestionAdvanced} {
		select {
		case ev := <-sub:
			if ev.Type != want {
				t.Fatalf("expected %s, got %s", want, ev.Type)
			}
			if ev.Seq <= lastSeq {
				t.Fatalf("sequence numbers must increase: %d after %d", ev.Seq, lastSeq)
			}
			lastSeq = ev.Seq
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub, cancel := hub.Subscribe("s1")
	defer cancel()

	// Never read sub: publishing far more than the buffer must not hang.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			hub.Publish("s1", domain.Event{Type: domain.EventLeaderboardUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher blocked on slow subscriber")
	}

	// The most recent event is still waiting for the subscriber.
	ev := <-sub
	if ev.Type != domain.EventLeaderboardUpdated {
		t.Fatalf("unexpected event %s", ev.Type)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub, cancel := hub.Subscribe("s1")
	cancel()

	if _, open := <-sub; open {
		t.Fatalf("expected channel closed after cancel")
	}
	// Publishing after cancel must not panic.
	hub.Publish("s1", domain.Event{Type: domain.EventSessionEnded})
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Publish("s1", domain.Event{Type: domain.EventAnswerScored})

	sub, cancel := hub.Subscribe("s1")
	defer cancel()

	select {
	case ev := <-sub:
		t.Fatalf("late subscriber must not see old events, got %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub, cancel := hub.Subscribe("s1")
	defer cancel()

	hub.Close("s1")
	if _, open := <-sub; open {
		t.Fatalf("expected subscriber channel closed")
	}
}

func TestPublishDoesNotBlockOnStalledRelay(t *testing.T) {
	relay := &stalledRelay{release: make(chan struct{})}
	defer close(relay.release)
	hub := NewHubWithRelay(zerolog.Nop(), relay)
	sub, cancel := hub.Subscribe("s1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		hub.Publish("s1", domain.Event{Type: domain.EventAnswerScored})
		hub.Publish("s1", domain.Event{Type: domain.EventLeaderboardUpdated})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publisher blocked on stalled relay")
	}

	// Local delivery is unaffected by the stalled relay.
	for _, want := range []domain.EventType{domain.EventAnswerScored, domain.EventLeaderboardUpdated} {
		select {
		case ev := <-sub:
			if ev.Type != want {
				t.Fatalf("expected %s, got %s", want, ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("local delivery stalled waiting for %s", want)
		}
	}
}

func TestRelayReceivesSequencedEvents(t *testing.T) {
	relay := &captureRelay{}
	hub := NewHubWithRelay(zerolog.Nop(), relay)

	hub.Publish("s1", domain.Event{Type: domain.EventAnswerScored})
	hub.Publish("s1", domain.Event{Type: domain.EventLeaderboardUpdated})

	deadline := time.Now().Add(time.Second)
	for {
		events := relay.snapshot()
		if len(events) == 2 {
			for i, ev := range events {
				if ev.Seq != uint64(i+1) {
					t.Fatalf("relayed event %d carries seq %d", i, ev.Seq)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("relay got %d events, want 2", len(events))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeRacingCloseGetsClosedChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ch := hub.channel("s1", true)
	hub.Close("s1")

	// Reinstate the torn-down channel to model a subscriber that looked it
	// up just before Close removed it from the map.
	hub.mu.Lock()
	hub.sessions["s1"] = ch
	hub.mu.Unlock()

	sub, cancel := hub.Subscribe("s1")
	defer cancel()
	select {
	case _, open := <-sub:
		if open {
			t.Fatalf("expected closed channel, got an event")
		}
	default:
		t.Fatalf("subscriber on a closed session must be closed immediately")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	subA, cancelA := hub.Subscribe("a")
	defer cancelA()
	subB, cancelB := hub.Subscribe("b")
	defer cancelB()

	hub.Publish("a", domain.Event{Type: domain.EventAnswerScored})

	select {
	case ev := <-subA:
		if ev.SessionID != "a" {
			t.Fatalf("expected session a, got %s", ev.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber a got nothing")
	}
	select {
	case ev := <-subB:
		t.Fatalf("session b must not see session a events, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
