// Package gate implements admission control for inbound turns: dedup of
// re-delivered events and a fixed per-user anti-spam window.
package gate

import (
	"sync"
	"time"
)

// Decision is the outcome of admission control for one inbound turn.
type Decision int

const (
	Admitted Decision = iota
	DroppedDuplicateEvent
	DroppedRateLimited
)

func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case DroppedDuplicateEvent:
		return "duplicate_event"
	case DroppedRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Gate combines event dedup with a per-user fixed admission window.
// Safe for concurrent use from both ingress paths.
type Gate struct {
	dedupe     *DedupeCache
	spamWindow time.Duration
	maxUsers   int

	mu           sync.Mutex
	lastAdmitted map[string]time.Time

	now func() time.Time // test hook
}

// New creates a Gate. spamWindow is the minimum gap between admitted turns
// from the same user; maxUsers caps the rate-state table.
func New(dedupe *DedupeCache, spamWindow time.Duration, maxUsers int) *Gate {
	return &Gate{
		dedupe:       dedupe,
		spamWindow:   spamWindow,
		maxUsers:     maxUsers,
		lastAdmitted: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Admit decides whether a turn proceeds to processing. eventKey must be
// channel-scoped (e.g. "vk:12345"). The event id is recorded even when the
// turn is rate-limited, so a re-delivery of the same event never reprocesses;
// the user's admission timestamp moves only on admission.
func (g *Gate) Admit(eventKey, userID string) Decision {
	if g.dedupe.Seen(eventKey) {
		return DroppedDuplicateEvent
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.lastAdmitted[userID]; ok && now.Sub(last) < g.spamWindow {
		return DroppedRateLimited
	}

	if len(g.lastAdmitted) >= g.maxUsers {
		g.prune(now)
	}
	g.lastAdmitted[userID] = now
	return Admitted
}

// prune drops entries outside the spam window; if the table is still full,
// evicts arbitrary entries until under the cap. Caller holds g.mu.
func (g *Gate) prune(now time.Time) {
	for id, t := range g.lastAdmitted {
		if now.Sub(t) >= g.spamWindow {
			delete(g.lastAdmitted, id)
		}
	}
	for len(g.lastAdmitted) >= g.maxUsers {
		for id := range g.lastAdmitted {
			delete(g.lastAdmitted, id)
			break
		}
	}
}
