// Package broadcast fans session events out to subscribers. The hub owns only
// the transport channels, never game state; a reconnecting client recovers
// state through the pull snapshot, not from this stream.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

const (
	subscriberBuffer = 16
	relayBuffer      = 256
)

// Relay carries events to other instances (e.g. over Redis pub/sub). Local
// delivery never depends on the relay.
type Relay interface {
	// Publish forwards a locally published event to remote instances.
	Publish(sessionID string, event domain.Event) error
	// Subscribe starts receiving remote events for a session. The handler is
	// called for events published by other instances only.
	Subscribe(sessionID string, handler func(domain.Event)) (cancel func(), err error)
}

// Hub is an in-process pub/sub keyed by session ID. Events for a session are
// assigned a monotonic sequence number and enqueued to every subscriber in
// publish order; a slow subscriber has its oldest pending event dropped
// rather than blocking the publisher. The relay leg is queued and drained by
// a single goroutine, so a stalled relay never blocks a publisher either.
type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]*sessionChannel
	relay      Relay
	relayQueue chan relayItem
	log        zerolog.Logger
}

type relayItem struct {
	sessionID string
	event     domain.Event
}

type sessionChannel struct {
	mu          sync.Mutex
	seq         uint64
	closed      bool
	subs        map[chan domain.Event]struct{}
	cancelRelay func()
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*sessionChannel),
		log:      log.With().Str("component", "broadcast").Logger(),
	}
}

// NewHubWithRelay builds a hub that mirrors events across instances.
func NewHubWithRelay(log zerolog.Logger, relay Relay) *Hub {
	h := NewHub(log)
	h.relay = relay
	h.relayQueue = make(chan relayItem, relayBuffer)
	go h.drainRelay()
	return h
}

// Publish delivers the event to all current subscribers of the session and,
// when a relay is configured, queues it for remote instances. Best effort:
// nothing is replayed to late subscribers, and a full relay queue drops the
// event rather than blocking the caller.
func (h *Hub) Publish(sessionID string, event domain.Event) {
	event.SessionID = sessionID
	ch := h.channel(sessionID, true)
	event = ch.deliver(event)
	if h.relay == nil {
		return
	}
	select {
	case h.relayQueue <- relayItem{sessionID: sessionID, event: event}:
	default:
		h.log.Warn().Str("session_id", sessionID).Str("type", string(event.Type)).Msg("relay queue full, event dropped")
	}
}

// drainRelay forwards queued events to the relay one at a time, preserving
// the sequence order assigned at publish.
func (h *Hub) drainRelay() {
	for item := range h.relayQueue {
		if err := h.relay.Publish(item.sessionID, item.event); err != nil {
			h.log.Warn().Err(err).Str("session_id", item.sessionID).Msg("relay publish failed")
		}
	}
}

// Subscribe returns a channel of events for the session. The caller must
// invoke the returned cancel function to avoid leaks. Subscribing to a
// session the hub has already closed yields an immediately-closed channel.
func (h *Hub) Subscribe(sessionID string) (<-chan domain.Event, func()) {
	ch := h.channel(sessionID, true)

	sub := make(chan domain.Event, subscriberBuffer)
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		close(sub)
		return sub, func() {}
	}
	ch.subs[sub] = struct{}{}
	first := len(ch.subs) == 1
	ch.mu.Unlock()

	if first && h.relay != nil {
		cancel, err := h.relay.Subscribe(sessionID, func(event domain.Event) { ch.deliver(event) })
		if err != nil {
			h.log.Warn().Err(err).Str("session_id", sessionID).Msg("relay subscribe failed")
		} else {
			ch.mu.Lock()
			ch.cancelRelay = cancel
			ch.mu.Unlock()
		}
	}

	cancel := func() {
		ch.mu.Lock()
		if _, ok := ch.subs[sub]; ok {
			delete(ch.subs, sub)
			close(sub)
		}
		last := len(ch.subs) == 0
		cancelRelay := ch.cancelRelay
		if last {
			ch.cancelRelay = nil
		}
		ch.mu.Unlock()
		if last && cancelRelay != nil {
			cancelRelay()
		}
	}
	return sub, cancel
}

// Close tears down the session's channel and closes all subscriber channels.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	ch, ok := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	ch.closed = true
	for sub := range ch.subs {
		close(sub)
	}
	ch.subs = make(map[chan domain.Event]struct{})
	cancelRelay := ch.cancelRelay
	ch.cancelRelay = nil
	ch.mu.Unlock()
	if cancelRelay != nil {
		cancelRelay()
	}
}

func (h *Hub) channel(sessionID string, create bool) *sessionChannel {
	h.mu.RLock()
	ch, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if ok || !create {
		return ch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok = h.sessions[sessionID]; ok {
		return ch
	}
	ch = &sessionChannel{subs: make(map[chan domain.Event]struct{})}
	h.sessions[sessionID] = ch
	return ch
}

// deliver assigns the next sequence number and enqueues to every subscriber
// under the channel lock, which is what guarantees per-session ordering. It
// returns the event with its sequence number set.
func (c *sessionChannel) deliver(event domain.Event) domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	event.Seq = c.seq
	for sub := range c.subs {
		select {
		case sub <- event:
		default:
			// Drop the oldest pending event so the publisher never blocks.
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- event:
			default:
			}
		}
	}
	return event
}
