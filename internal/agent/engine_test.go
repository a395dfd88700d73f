package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fotoskupka/estimabot/internal/bus"
	"github.com/fotoskupka/estimabot/internal/config"
	"github.com/fotoskupka/estimabot/internal/gate"
	"github.com/fotoskupka/estimabot/internal/intent"
	"github.com/fotoskupka/estimabot/internal/media"
	"github.com/fotoskupka/estimabot/internal/providers"
	"github.com/fotoskupka/estimabot/internal/sessions"
)

type fakeProvider struct {
	calls []providers.ChatRequest
	reply string
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ChatResponse{Content: f.reply, FinishReason: "stop"}, nil
}

func testMessages() config.MessagesConfig {
	return config.Default().Messages
}

func newTestEngine(p providers.Provider) (*Engine, *sessions.Manager) {
	msgs := testMessages()
	sess := sessions.NewManager(msgs.SystemPrompt, sessions.Limits{MaxHistory: 40})
	g := gate.New(gate.NewDedupeCache(20*time.Minute, 100), 0, 100) // zero window: every turn admitted
	e := NewEngine(
		g,
		intent.NewClassifier(config.Default().Intent.SellKeywords),
		sess,
		p,
		media.NewFetcher(time.Second, 1024),
		"openai/gpt-4o-2024-05-13",
		1000,
		msgs,
	)
	return e, sess
}

func turn(eventID, userID, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:    "vk",
		EventID:    eventID,
		UserID:     userID,
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

func TestSellIntentShortCircuitsCompletion(t *testing.T) {
	p := &fakeProvider{reply: "ignored"}
	e, sess := newTestEngine(p)

	content, decision := e.Process(context.Background(), turn("1", "u1", "продать камеру"))
	if decision != gate.Admitted {
		t.Fatalf("decision = %v", decision)
	}
	if content != testMessages().SellReply {
		t.Errorf("content = %q, want sell literal", content)
	}
	if len(p.calls) != 0 {
		t.Errorf("provider invoked %d times on short-circuit path", len(p.calls))
	}
	if sess.History("u1") != nil {
		t.Error("short-circuit must not touch session history")
	}
}

func TestEmptyInputShortCircuit(t *testing.T) {
	p := &fakeProvider{}
	e, _ := newTestEngine(p)

	content, _ := e.Process(context.Background(), turn("1", "u1", "hi"))
	if content != testMessages().EmptyReply {
		t.Errorf("content = %q, want empty-input literal", content)
	}
	if len(p.calls) != 0 {
		t.Error("provider invoked on empty-input path")
	}
}

func TestNormalTurnRoundTrip(t *testing.T) {
	p := &fakeProvider{reply: "Около 40 000 ₽ в хорошем состоянии."}
	e, sess := newTestEngine(p)

	content, _ := e.Process(context.Background(), turn("1", "u1", "Canon 5D Mark III"))
	if content != p.reply {
		t.Fatalf("content = %q", content)
	}

	if len(p.calls) != 1 {
		t.Fatalf("provider calls = %d", len(p.calls))
	}
	req := p.calls[0]
	if req.Model != "openai/gpt-4o-2024-05-13" || req.MaxTokens != 1000 {
		t.Errorf("request params: %+v", req)
	}
	// snapshot: system + the new user entry with original casing, no image
	if len(req.Messages) != 2 {
		t.Fatalf("context len = %d", len(req.Messages))
	}
	if req.Messages[1].Content != "Canon 5D Mark III" || len(req.Messages[1].Images) != 0 {
		t.Errorf("user entry = %+v", req.Messages[1])
	}

	hist := sess.History("u1")
	if len(hist) != 3 || hist[2].Role != "assistant" || hist[2].Content != p.reply {
		t.Errorf("history after success = %+v", hist)
	}
}

func TestPhotoOnlyGetsDefaultPrompt(t *testing.T) {
	p := &fakeProvider{reply: "Это Canon AE-1."}
	e, _ := newTestEngine(p)

	msg := turn("1", "u1", "")
	msg.PhotoData = "QUJD"
	content, _ := e.Process(context.Background(), msg)
	if content != p.reply {
		t.Fatalf("content = %q", content)
	}

	req := p.calls[0]
	userEntry := req.Messages[len(req.Messages)-1]
	if userEntry.Content != testMessages().PhotoPrompt {
		t.Errorf("text = %q, want the default photo prompt", userEntry.Content)
	}
	if len(userEntry.Images) != 1 || userEntry.Images[0].Data != "QUJD" {
		t.Errorf("image part = %+v", userEntry.Images)
	}
}

func TestCompletionFailureLeavesUserEntry(t *testing.T) {
	p := &fakeProvider{err: errors.New("connection refused")}
	e, sess := newTestEngine(p)

	content, _ := e.Process(context.Background(), turn("1", "u1", "nikon d850"))
	if content != testMessages().FailureReply {
		t.Errorf("content = %q, want failure literal", content)
	}

	hist := sess.History("u1")
	if len(hist) != 2 || hist[1].Role != "user" {
		t.Fatalf("history = %+v, want unanswered user entry preserved", hist)
	}
}

func TestNoChoicesLiteral(t *testing.T) {
	p := &fakeProvider{err: providers.ErrNoChoices}
	e, _ := newTestEngine(p)

	content, _ := e.Process(context.Background(), turn("1", "u1", "nikon d850"))
	if content != testMessages().NoChoicesReply {
		t.Errorf("content = %q, want no-choices literal", content)
	}
}

func TestFetchFailureContinuesWithoutPhoto(t *testing.T) {
	p := &fakeProvider{reply: "Уточните модель."}
	e, _ := newTestEngine(p)

	msg := turn("1", "u1", "sony a7")
	msg.PhotoURL = "http://127.0.0.1:0/unreachable.jpg"
	content, _ := e.Process(context.Background(), msg)
	if content != p.reply {
		t.Fatalf("content = %q", content)
	}
	if len(p.calls[0].Messages[1].Images) != 0 {
		t.Error("image present despite failed fetch")
	}
}

func TestFetchFailurePhotoOnlyYieldsEmptyLiteral(t *testing.T) {
	p := &fakeProvider{reply: "ignored"}
	e, sess := newTestEngine(p)

	msg := turn("1", "u1", "")
	msg.PhotoURL = "http://127.0.0.1:0/unreachable.jpg"
	content, decision := e.Process(context.Background(), msg)
	if decision != gate.Admitted {
		t.Fatalf("decision = %v", decision)
	}
	if content != testMessages().EmptyReply {
		t.Errorf("content = %q, want empty-input literal", content)
	}
	if len(p.calls) != 0 {
		t.Error("provider invoked for a turn with no surviving parts")
	}
	if sess.History("u1") != nil {
		t.Error("zero-part entry must never reach history")
	}
}

func TestHistoryKeepsOriginalCasing(t *testing.T) {
	p := &fakeProvider{reply: "ок"}
	e, sess := newTestEngine(p)

	e.Process(context.Background(), turn("1", "u1", "  Nikon Z6 II  "))
	hist := sess.History("u1")
	if len(hist) != 3 || hist[1].Content != "Nikon Z6 II" {
		t.Errorf("history = %+v, want trimmed original-case user entry", hist)
	}
}

func TestDroppedTurnsProduceNoContent(t *testing.T) {
	p := &fakeProvider{reply: "x"}
	e, _ := newTestEngine(p)

	e.Process(context.Background(), turn("1", "u1", "canon 5d"))
	content, decision := e.Process(context.Background(), turn("1", "u1", "canon 5d"))
	if decision != gate.DroppedDuplicateEvent || content != "" {
		t.Errorf("replay: content=%q decision=%v", content, decision)
	}
}

func TestConsumePublishesOutbound(t *testing.T) {
	p := &fakeProvider{reply: "ответ"}
	e, _ := newTestEngine(p)

	mb := bus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Consume(ctx, mb)

	if err := mb.PublishInbound(ctx, turn("1", "u1", "canon 5d")); err != nil {
		t.Fatal(err)
	}

	out, ok := mb.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("no outbound message")
	}
	if out.Channel != "vk" || out.UserID != "u1" || out.Content != "ответ" {
		t.Errorf("outbound = %+v", out)
	}
	if out.Input != "canon 5d" {
		t.Errorf("input = %q", out.Input)
	}
}
