package gate

import (
	"fmt"
	"testing"
	"time"
)

func newTestGate(window time.Duration) (*Gate, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := New(NewDedupeCache(20*time.Minute, 100), window, 16)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestAdmitThenDuplicate(t *testing.T) {
	g, _ := newTestGate(5 * time.Second)

	if got := g.Admit("vk:1", "u1"); got != Admitted {
		t.Fatalf("first event = %v, want Admitted", got)
	}
	if got := g.Admit("vk:1", "u1"); got != DroppedDuplicateEvent {
		t.Fatalf("replayed event = %v, want DroppedDuplicateEvent", got)
	}
}

func TestDuplicateDoesNotTouchRateState(t *testing.T) {
	g, now := newTestGate(5 * time.Second)

	g.Admit("vk:1", "u1")
	*now = now.Add(6 * time.Second)
	// replay of event 1 must not refresh u1's admission timestamp
	g.Admit("vk:1", "u1")
	if got := g.Admit("vk:2", "u1"); got != Admitted {
		t.Fatalf("after window = %v, want Admitted", got)
	}
}

func TestRateWindowBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		want   Decision
	}{
		{"same instant", 0, DroppedRateLimited},
		{"just inside window", 4999 * time.Millisecond, DroppedRateLimited},
		{"exactly at window", 5 * time.Second, Admitted},
		{"past window", 7 * time.Second, Admitted},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, now := newTestGate(5 * time.Second)
			g.Admit(fmt.Sprintf("vk:base%d", i), "u1")
			*now = now.Add(tt.offset)
			if got := g.Admit(fmt.Sprintf("vk:next%d", i), "u1"); got != tt.want {
				t.Errorf("offset %v: got %v, want %v", tt.offset, got, tt.want)
			}
		})
	}
}

func TestRateLimitedEventStillDeduped(t *testing.T) {
	g, _ := newTestGate(5 * time.Second)

	g.Admit("vk:1", "u1")
	if got := g.Admit("vk:2", "u1"); got != DroppedRateLimited {
		t.Fatalf("inside window = %v, want DroppedRateLimited", got)
	}
	// the rate-limited event's id was still recorded
	if got := g.Admit("vk:2", "u1"); got != DroppedDuplicateEvent {
		t.Fatalf("replay of rate-limited event = %v, want DroppedDuplicateEvent", got)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	g, _ := newTestGate(5 * time.Second)

	g.Admit("vk:1", "u1")
	if got := g.Admit("vk:2", "u2"); got != Admitted {
		t.Fatalf("other user = %v, want Admitted", got)
	}
}

func TestRateStateStaysBounded(t *testing.T) {
	g, _ := newTestGate(5 * time.Second)

	for i := 0; i < 100; i++ {
		g.Admit(fmt.Sprintf("vk:%d", i), fmt.Sprintf("u%d", i))
	}
	g.mu.Lock()
	n := len(g.lastAdmitted)
	g.mu.Unlock()
	if n > 16 {
		t.Errorf("rate table size = %d, want <= 16", n)
	}
}
