package sessions

import (
	"fmt"
	"testing"
	"time"

	"github.com/fotoskupka/estimabot/internal/providers"
)

const persona = "Ты работаешь в скупке фототехники."

func TestFirstEntryIsSystemAndSurvivesAppends(t *testing.T) {
	m := NewManager(persona, Limits{MaxHistory: 4})

	for i := 0; i < 20; i++ {
		m.AppendUser("u1", fmt.Sprintf("msg %d", i), nil)
		m.AppendAssistant("u1", fmt.Sprintf("reply %d", i))
	}

	hist := m.History("u1")
	if hist[0].Role != "system" || hist[0].Content != persona {
		t.Fatalf("first entry = %+v, want system persona", hist[0])
	}
	// bounded: system entry + at most MaxHistory
	if len(hist) > 5 {
		t.Errorf("history len = %d, want <= 5", len(hist))
	}
	// the most recent assistant reply survived the trim
	if hist[len(hist)-1].Content != "reply 19" {
		t.Errorf("last entry = %q", hist[len(hist)-1].Content)
	}
}

func TestAppendUserSnapshotIncludesNewEntry(t *testing.T) {
	m := NewManager(persona, Limits{})

	img := &providers.ImageContent{MimeType: "image/jpeg", Data: "QUJD"}
	snap := m.AppendUser("u1", "canon 5d", img)

	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2 (system + user)", len(snap))
	}
	last := snap[len(snap)-1]
	if last.Role != "user" || last.Content != "canon 5d" {
		t.Errorf("last = %+v", last)
	}
	if len(last.Images) != 1 || last.Images[0].Data != "QUJD" {
		t.Errorf("image part = %+v", last.Images)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewManager(persona, Limits{})

	snap := m.AppendUser("u1", "first", nil)
	snap[0].Content = "mutated"
	snap = append(snap, providers.Message{Role: "assistant", Content: "injected"})
	_ = snap

	hist := m.History("u1")
	if hist[0].Content != persona {
		t.Error("mutating a snapshot changed stored state")
	}
	if len(hist) != 2 {
		t.Errorf("history len = %d, want 2", len(hist))
	}
}

func TestNoAssistantEntryWithoutSession(t *testing.T) {
	m := NewManager(persona, Limits{})
	m.AppendAssistant("ghost", "reply")
	if m.History("ghost") != nil {
		t.Error("AppendAssistant must not create a session")
	}
}

func TestFailedCompletionLeavesUserEntry(t *testing.T) {
	m := NewManager(persona, Limits{})

	m.AppendUser("u1", "unanswered", nil)
	// completion failed: no AppendAssistant call

	hist := m.History("u1")
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	if hist[1].Role != "user" || hist[1].Content != "unanswered" {
		t.Errorf("unanswered user turn missing: %+v", hist[1])
	}
}

func TestSessionTableBounded(t *testing.T) {
	m := NewManager(persona, Limits{MaxSessions: 8, IdleTTL: time.Hour})

	for i := 0; i < 50; i++ {
		m.AppendUser(fmt.Sprintf("u%d", i), "hello there", nil)
	}
	if m.Len() > 8 {
		t.Errorf("sessions = %d, want <= 8", m.Len())
	}
	// the newest session survived eviction
	if m.History("u49") == nil {
		t.Error("most recent session was evicted")
	}
}

func TestIdleSessionsEvictedFirst(t *testing.T) {
	m := NewManager(persona, Limits{MaxSessions: 2, IdleTTL: time.Minute})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.AppendUser("old", "hello there", nil)
	now = now.Add(2 * time.Minute)
	m.AppendUser("fresh", "hello there", nil)
	now = now.Add(time.Second)
	m.AppendUser("new", "hello there", nil)

	if m.History("old") != nil {
		t.Error("idle session should have been evicted")
	}
	if m.History("fresh") == nil || m.History("new") == nil {
		t.Error("active sessions evicted instead of the idle one")
	}
}
