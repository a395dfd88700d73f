package vk

import "encoding/json"

// apiResponse is the envelope of every VK API method call.
type apiResponse struct {
	Response json.RawMessage `json:"response"`
	Error    *apiError       `json:"error"`
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

// longPollServer is the result of groups.getLongPollServer.
type longPollServer struct {
	Key    string `json:"key"`
	Server string `json:"server"`
	TS     string `json:"ts"`
}

// pollResult is one a_check cycle. Failed values per the Bots Long Poll
// protocol: 1 = ts out of date (use the returned ts), 2 = key expired,
// 3 = both lost (re-fetch the server).
type pollResult struct {
	TS      string       `json:"ts"`
	Updates []pollUpdate `json:"updates"`
	Failed  int          `json:"failed"`
}

type pollUpdate struct {
	Type   string `json:"type"`
	Object struct {
		Message message `json:"message"`
	} `json:"object"`
}

type message struct {
	ID          int          `json:"id"`
	FromID      int64        `json:"from_id"`
	PeerID      int64        `json:"peer_id"`
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Type  string `json:"type"`
	Photo *photo `json:"photo"`
}

type photo struct {
	Sizes []photoSize `json:"sizes"`
}

type photoSize struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// photoURL returns the URL of the largest size of the first photo attachment,
// or "" when the message carries no photo.
func (m message) photoURL() string {
	for _, att := range m.Attachments {
		if att.Type != "photo" || att.Photo == nil {
			continue
		}
		var best photoSize
		for _, s := range att.Photo.Sizes {
			if s.Width > best.Width {
				best = s
			}
		}
		return best.URL
	}
	return ""
}
