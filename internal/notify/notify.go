// Package notify delivers market event announcements to external
// destinations. Delivery is best-effort and fire-and-forget: a slow or
// unreachable destination must never block price evolution or trading, and
// per-destination failures never propagate to the caller.
package notify

import "github.com/papertrade/market-sim/internal/shock"

// Event is an announced market shock, emitted after the effect has been
// committed to the registry.
type Event = shock.Event

// Sink receives event announcements.
type Sink interface {
	Announce(ev Event)
}

// Fanout delivers an announcement to every sink.
type Fanout []Sink

func (f Fanout) Announce(ev Event) {
	for _, s := range f {
		s.Announce(ev)
	}
}
