// Package dispatch coordinates reply delivery: suppression of identical
// consecutive content, routing to the owning channel's send API, and the
// best-effort staff-notification mirror.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fotoskupka/estimabot/internal/bus"
)

// Outcome is the terminal result of a delivery attempt.
type Outcome int

const (
	Sent Outcome = iota
	Suppressed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Suppressed:
		return "suppressed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sender is the outbound side of an ingress channel.
type Sender interface {
	// Name returns the channel identifier ("vk", "web").
	Name() string
	// Send delivers content to the user. Implementations generate their own
	// platform correlation id per attempt.
	Send(ctx context.Context, userID, content string) error
}

// Notifier mirrors a completed exchange to a secondary sink (Telegram staff
// channel). Best-effort: failures never affect the primary delivery.
type Notifier interface {
	Notify(ctx context.Context, userID, input, reply string) error
}

// notifyTimeout bounds the fire-and-forget mirror call.
const notifyTimeout = 5 * time.Second

// Dispatcher routes outbound replies to registered channel senders, applying
// reply dedup before the send and recording the digest only after success.
type Dispatcher struct {
	dedup    *ReplyDedup
	notifier Notifier
	mirror   func(channel string) bool // which channels get the staff mirror

	mu      sync.RWMutex
	senders map[string]Sender
}

func NewDispatcher(dedup *ReplyDedup, notifier Notifier, mirror func(channel string) bool) *Dispatcher {
	if mirror == nil {
		mirror = func(string) bool { return false }
	}
	return &Dispatcher{
		dedup:    dedup,
		notifier: notifier,
		mirror:   mirror,
		senders:  make(map[string]Sender),
	}
}

// Register adds a channel sender. Later registrations with the same name win.
func (d *Dispatcher) Register(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.Name()] = s
}

// Deliver sends one reply. Identical consecutive content for the same user is
// suppressed; send failures are terminal (no retry).
func (d *Dispatcher) Deliver(ctx context.Context, msg bus.OutboundMessage) Outcome {
	if msg.Content == "" {
		return Suppressed
	}

	if !d.dedup.ShouldSend(msg.UserID, msg.Content) {
		slog.Info("reply suppressed, identical to last sent",
			"channel", msg.Channel, "user", msg.UserID)
		return Suppressed
	}

	d.mu.RLock()
	sender, ok := d.senders[msg.Channel]
	d.mu.RUnlock()
	if !ok {
		slog.Warn("unknown channel for outbound message", "channel", msg.Channel)
		return Failed
	}

	if err := sender.Send(ctx, msg.UserID, msg.Content); err != nil {
		slog.Error("send failed", "channel", msg.Channel, "user", msg.UserID, "error", err)
		return Failed
	}

	d.dedup.RecordSent(msg.UserID, msg.Content)

	if d.notifier != nil && d.mirror(msg.Channel) {
		go d.notify(msg)
	}

	return Sent
}

// notify runs the mirror with its own deadline, detached from the request.
func (d *Dispatcher) notify(msg bus.OutboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, msg.UserID, msg.Input, msg.Content); err != nil {
		slog.Warn("notification mirror failed", "channel", msg.Channel, "error", err)
	}
}

// Run consumes outbound messages from the bus until the context is done.
// Used by the polling ingress path; the web path calls Deliver directly.
func (d *Dispatcher) Run(ctx context.Context, mb *bus.MessageBus) {
	slog.Info("outbound dispatcher started")
	for {
		msg, ok := mb.SubscribeOutbound(ctx)
		if !ok {
			slog.Info("outbound dispatcher stopped")
			return
		}
		d.Deliver(ctx, msg)
	}
}
