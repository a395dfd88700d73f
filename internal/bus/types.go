package bus

import "time"

// InboundMessage is a canonical inbound turn produced by an ingress channel.
type InboundMessage struct {
	Channel    string    `json:"channel"`               // "vk", "web"
	EventID    string    `json:"event_id"`              // channel-scoped id, used for dedup
	UserID     string    `json:"user_id"`               // stable per (channel, originating address)
	Text       string    `json:"text"`                  // raw text, may be empty
	PhotoURL   string    `json:"photo_url,omitempty"`   // remote attachment to fetch (VK)
	PhotoData  string    `json:"photo_data,omitempty"`  // inline base64 attachment (web)
	ReceivedAt time.Time `json:"received_at"`
}

// HasAttachment reports whether the turn carries an image in any form.
func (m InboundMessage) HasAttachment() bool {
	return m.PhotoURL != "" || m.PhotoData != ""
}

// OutboundMessage is a reply to be delivered back to the originating channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	UserID  string `json:"user_id"`
	Input   string `json:"input"`   // the user text that produced this reply (for the notification mirror)
	Content string `json:"content"` // reply text
}
