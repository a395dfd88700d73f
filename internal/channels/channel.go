// Package channels defines the ingress channel abstraction. Channels convert
// platform events into canonical inbound turns on the message bus and expose
// the platform's send API for outbound delivery.
package channels

import "context"

// Channel is a long-lived ingress adapter (currently only the VK long-poll
// channel; the web gateway is request/response and lives in internal/gateway).
type Channel interface {
	// Name returns the channel identifier (e.g. "vk").
	Name() string

	// Start begins listening for events. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers content to a user on this channel.
	Send(ctx context.Context, userID, content string) error

	// IsRunning reports whether the channel is actively polling.
	IsRunning() bool
}
