// Package agent runs the session & delivery controller pipeline: admission,
// intent classification, conversation context, and completion orchestration.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/fotoskupka/estimabot/internal/bus"
	"github.com/fotoskupka/estimabot/internal/config"
	"github.com/fotoskupka/estimabot/internal/gate"
	"github.com/fotoskupka/estimabot/internal/intent"
	"github.com/fotoskupka/estimabot/internal/media"
	"github.com/fotoskupka/estimabot/internal/providers"
	"github.com/fotoskupka/estimabot/internal/sessions"
)

// Engine ties the core pipeline together. Both ingress paths call Process
// concurrently; all state behind it is independently synchronized, and no
// network call happens while any of that state is locked.
type Engine struct {
	gate       *gate.Gate
	classifier *intent.Classifier
	sessions   *sessions.Manager
	provider   providers.Provider
	fetcher    *media.Fetcher

	model     string
	maxTokens int
	msgs      config.MessagesConfig
}

func NewEngine(
	g *gate.Gate,
	classifier *intent.Classifier,
	sess *sessions.Manager,
	provider providers.Provider,
	fetcher *media.Fetcher,
	model string,
	maxTokens int,
	msgs config.MessagesConfig,
) *Engine {
	return &Engine{
		gate:       g,
		classifier: classifier,
		sessions:   sess,
		provider:   provider,
		fetcher:    fetcher,
		model:      model,
		maxTokens:  maxTokens,
		msgs:       msgs,
	}
}

// Process runs one inbound turn through admission, classification, and (when
// needed) the completion orchestrator. It returns the content to deliver and
// the admission decision; content is empty when the turn was dropped.
func (e *Engine) Process(ctx context.Context, turn bus.InboundMessage) (string, gate.Decision) {
	eventKey := turn.Channel + ":" + turn.EventID
	decision := e.gate.Admit(eventKey, turn.UserID)
	if decision != gate.Admitted {
		slog.Info("turn dropped", "channel", turn.Channel, "user", turn.UserID,
			"event", turn.EventID, "reason", decision.String())
		return "", decision
	}

	text := intent.Normalize(turn.Text)

	switch e.classifier.Classify(text, turn.HasAttachment()) {
	case intent.Sell:
		slog.Info("sell intent short-circuit", "channel", turn.Channel, "user", turn.UserID)
		return e.msgs.SellReply, decision
	case intent.Empty:
		slog.Info("empty input short-circuit", "channel", turn.Channel, "user", turn.UserID)
		return e.msgs.EmptyReply, decision
	}

	return e.complete(ctx, turn, text), decision
}

// complete resolves the attachment, appends the user turn, and invokes the
// completion provider. Failures surface as fixed literals which flow through
// reply dedup like any other content.
func (e *Engine) complete(ctx context.Context, turn bus.InboundMessage, norm string) string {
	image := e.resolveImage(ctx, turn)

	// The attachment may be gone by now (fetch failure). Re-check the
	// empty-input rule against what actually survived, so a zero-part entry
	// never reaches history or the model.
	if image == nil && e.classifier.Classify(norm, false) == intent.Empty {
		slog.Info("empty input after attachment loss", "channel", turn.Channel, "user", turn.UserID)
		return e.msgs.EmptyReply
	}

	// History keeps the user's original casing; normalization is for
	// classification only.
	text := strings.TrimSpace(turn.Text)

	// Photo with no text: substitute the fixed estimation prompt.
	if image != nil && text == "" {
		text = e.msgs.PhotoPrompt
	}

	snapshot := e.sessions.AppendUser(turn.UserID, text, image)

	slog.Info("requesting completion", "channel", turn.Channel, "user", turn.UserID,
		"context_len", len(snapshot), "has_image", image != nil)

	resp, err := e.provider.Chat(ctx, providers.ChatRequest{
		Messages:  snapshot,
		Model:     e.model,
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		// The unanswered user entry stays in history; a resend naturally
		// retries with the same context.
		if errors.Is(err, providers.ErrNoChoices) {
			slog.Warn("completion returned no candidates", "user", turn.UserID)
			return e.msgs.NoChoicesReply
		}
		slog.Error("completion failed", "user", turn.UserID, "error", err)
		return e.msgs.FailureReply
	}

	e.sessions.AppendAssistant(turn.UserID, resp.Content)
	return resp.Content
}

// resolveImage produces the image part for the turn: inline payload from the
// web channel, or a bounded fetch for a remote VK photo. Fetch failure means
// the turn continues without the attachment.
func (e *Engine) resolveImage(ctx context.Context, turn bus.InboundMessage) *providers.ImageContent {
	if turn.PhotoData != "" {
		return &providers.ImageContent{MimeType: "image/jpeg", Data: turn.PhotoData}
	}
	if turn.PhotoURL == "" {
		return nil
	}

	data, mime, err := e.fetcher.Fetch(ctx, turn.PhotoURL)
	if err != nil {
		slog.Warn("attachment fetch failed, continuing without photo",
			"user", turn.UserID, "error", err)
		return nil
	}
	return &providers.ImageContent{MimeType: mime, Data: data}
}

// Consume processes inbound turns from the polling ingress one at a time, in
// arrival order, publishing replies to the outbound side of the bus.
func (e *Engine) Consume(ctx context.Context, mb *bus.MessageBus) {
	slog.Info("inbound consumer started")
	for {
		turn, ok := mb.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound consumer stopped")
			return
		}

		content, _ := e.Process(ctx, turn)
		if content == "" {
			continue
		}

		out := bus.OutboundMessage{
			Channel: turn.Channel,
			UserID:  turn.UserID,
			Input:   turn.Text,
			Content: content,
		}
		if err := mb.PublishOutbound(ctx, out); err != nil {
			slog.Error("publish outbound failed", "user", turn.UserID, "error", err)
		}
	}
}
