// Package router fans state, text and voice events out to the right subset
// of sessions. Delivery rules live here; who is connected lives in the
// session registry.
package router

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/murmelhq/murmel/internal/metrics"
	"github.com/murmelhq/murmel/internal/mumbleproto"
	"github.com/murmelhq/murmel/internal/session"
)

// Delivery is one item on a subscriber's outbound queue: either a control
// message or a raw voice packet payload.
type Delivery struct {
	Msg   mumbleproto.Message
	Audio []byte
}

// Event is a control-plane broadcast.
type Event struct {
	Msg    mumbleproto.Message
	Origin uint32 // originating session number, SystemSession for server events

	// IncludeOrigin delivers the event back to its originator. The server
	// publishes self-excluding by default; the originator already applied
	// the mutation locally.
	IncludeOrigin bool

	// Channels restricts TextMessage delivery to sessions whose current
	// channel is in the list.
	Channels []uint32
}

// Observer sees every published control event, after filtering decisions
// but independent of them. The web bridge hangs off this.
type Observer func(Event)

type subscriber struct {
	number uint32
	ch     chan Delivery
}

// Router owns the subscriber registry. Subscribe on session creation,
// unsubscribe exactly once on teardown.
type Router struct {
	mu       sync.RWMutex
	reg      *session.Registry
	subs     map[uint32]*subscriber
	observer Observer
}

// New builds a router reading membership from reg.
func New(reg *session.Registry) *Router {
	return &Router{
		reg:  reg,
		subs: make(map[uint32]*subscriber),
	}
}

// Subscribe registers an outbound queue for a session number and returns
// its receive side.
func (r *Router) Subscribe(number uint32, depth int) <-chan Delivery {
	sub := &subscriber{number: number, ch: make(chan Delivery, depth)}
	r.mu.Lock()
	r.subs[number] = sub
	r.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes and closes a session's queue. Safe to call more than
// once; only the first call closes the channel.
func (r *Router) Unsubscribe(number uint32) {
	r.mu.Lock()
	sub, ok := r.subs[number]
	if ok {
		delete(r.subs, number)
	}
	r.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// SetObserver installs the control-event observer.
func (r *Router) SetObserver(obs Observer) {
	r.mu.Lock()
	r.observer = obs
	r.mu.Unlock()
}

// Publish delivers a control event to every matching subscriber. A full
// queue on one recipient never blocks or aborts delivery to the rest.
func (r *Router) Publish(ev Event) {
	r.mu.RLock()
	subs := make([]*subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	obs := r.observer
	r.mu.RUnlock()

	for _, sub := range subs {
		if !r.wants(sub.number, ev) {
			continue
		}
		r.deliver(sub, Delivery{Msg: ev.Msg})
	}

	if obs != nil {
		obs(ev)
	}
}

func (r *Router) wants(number uint32, ev Event) bool {
	if number == ev.Origin && !ev.IncludeOrigin {
		return false
	}
	if ev.Msg.Type() == mumbleproto.TypeTextMessage {
		ch, ok := r.reg.ChannelOf(number)
		if !ok {
			return false
		}
		for _, dest := range ev.Channels {
			if dest == ch {
				return true
			}
		}
		return false
	}
	return true
}

// PublishAudio fans a raw voice packet out to every session that is not
// the speaker, shares the speaker's channel (through the routing index, so
// a mid-flight move can't tear the decision) and is not self-deafened.
func (r *Router) PublishAudio(packet []byte, origin uint32) {
	srcChannel, ok := r.reg.ChannelOf(origin)
	if !ok {
		return
	}

	r.mu.RLock()
	subs := make([]*subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		if sub.number == origin {
			continue
		}
		ch, ok := r.reg.ChannelOf(sub.number)
		if !ok || ch != srcChannel {
			continue
		}
		s, ok := r.reg.GetByNumber(sub.number)
		if !ok || s.SelfDeaf {
			continue
		}
		r.deliver(sub, Delivery{Audio: packet})
	}
}

func (r *Router) deliver(sub *subscriber, d Delivery) {
	defer func() {
		// Unsubscribe can close the queue while a publish is in flight;
		// that recipient is gone, the rest still get the event.
		if recover() != nil {
			log.Warn().Str("module", "router").Uint32("session", sub.number).
				Msg("delivery to closed subscriber skipped")
		}
	}()

	select {
	case sub.ch <- d:
	default:
		metrics.BroadcastDrops.Inc()
		log.Warn().Str("module", "router").Uint32("session", sub.number).
			Msg("subscriber queue full, delivery dropped")
	}
}
