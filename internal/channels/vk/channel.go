// Package vk connects to VK via the Bots Long Poll API. Events are published
// to the message bus one at a time, in arrival order; delivery duplicates
// after reconnects are expected and left to the admission gate.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fotoskupka/estimabot/internal/bus"
	"github.com/fotoskupka/estimabot/internal/config"
)

// Channel polls the VK Bots Long Poll server and sends replies via
// messages.send.
type Channel struct {
	cfg     config.VKConfig
	bus     *bus.MessageBus
	client  *http.Client
	running atomic.Bool

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

func New(cfg config.VKConfig, msgBus *bus.MessageBus) *Channel {
	return &Channel{
		cfg: cfg,
		bus: msgBus,
		// client timeout covers connect + the server-side long-poll wait
		client: &http.Client{Timeout: time.Duration(cfg.Wait+15) * time.Second},
	}
}

func (c *Channel) Name() string    { return "vk" }
func (c *Channel) IsRunning() bool { return c.running.Load() }

// Start launches the polling goroutine.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting vk channel (bots long poll)", "group_id", c.cfg.GroupID)

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})
	c.running.Store(true)

	go c.pollLoop(pollCtx)
	return nil
}

// Stop cancels polling and waits for the loop to exit.
func (c *Channel) Stop(ctx context.Context) error {
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.running.Store(false)
	slog.Info("vk channel stopped")
	return nil
}

// Send delivers content via messages.send with a fresh random_id so the
// platform's own duplicate suppression never swallows a legitimate resend.
func (c *Channel) Send(ctx context.Context, userID, content string) error {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("message", content)
	params.Set("random_id", strconv.FormatInt(randomID(), 10))

	var messageID json.RawMessage
	if err := c.call(ctx, "messages.send", params, &messageID); err != nil {
		return fmt.Errorf("messages.send to %s: %w", userID, err)
	}
	return nil
}

// pollLoop runs getLongPollServer + a_check cycles until the context is done.
// Any cycle error pauses for the configured backoff before resuming.
func (c *Channel) pollLoop(ctx context.Context) {
	defer close(c.pollDone)

	backoff := time.Duration(c.cfg.BackoffSecs) * time.Second
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var srv *longPollServer
	for ctx.Err() == nil {
		if srv == nil {
			fresh, err := c.getLongPollServer(ctx)
			if err != nil {
				slog.Error("vk: get long poll server failed", "error", err)
				if !sleep(ctx, backoff) {
					return
				}
				continue
			}
			srv = fresh
			slog.Info("vk: long poll connected")
		}

		result, err := c.check(ctx, srv)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("vk: poll cycle failed", "error", err)
			if !sleep(ctx, backoff) {
				return
			}
			continue
		}

		switch result.Failed {
		case 0:
			srv.TS = result.TS
			c.publishUpdates(ctx, result.Updates)
		case 1:
			// history outdated: resume from the ts the server handed back
			srv.TS = result.TS
		default:
			// key expired or server lost: full reconnect
			slog.Warn("vk: long poll session invalidated", "failed", result.Failed)
			srv = nil
		}
	}
}

func (c *Channel) publishUpdates(ctx context.Context, updates []pollUpdate) {
	for _, u := range updates {
		if u.Type != "message_new" {
			continue
		}
		msg := u.Object.Message
		if msg.FromID <= 0 {
			// outgoing / group-authored messages are not user turns
			continue
		}

		turn := bus.InboundMessage{
			Channel:    "vk",
			EventID:    strconv.Itoa(msg.ID),
			UserID:     strconv.FormatInt(msg.FromID, 10),
			Text:       msg.Text,
			PhotoURL:   msg.photoURL(),
			ReceivedAt: time.Now(),
		}

		slog.Debug("vk: event received", "event", turn.EventID, "user", turn.UserID)
		if err := c.bus.PublishInbound(ctx, turn); err != nil {
			slog.Error("vk: publish inbound failed", "error", err)
			return
		}
	}
}

func (c *Channel) getLongPollServer(ctx context.Context) (*longPollServer, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(c.cfg.GroupID, 10))

	var srv longPollServer
	if err := c.call(ctx, "groups.getLongPollServer", params, &srv); err != nil {
		return nil, err
	}
	return &srv, nil
}

func (c *Channel) check(ctx context.Context, srv *longPollServer) (*pollResult, error) {
	q := url.Values{}
	q.Set("act", "a_check")
	q.Set("key", srv.Key)
	q.Set("ts", srv.TS)
	q.Set("wait", strconv.Itoa(c.cfg.Wait))

	req, err := http.NewRequestWithContext(ctx, "GET", srv.Server+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("long poll: unexpected status %d", resp.StatusCode)
	}

	var result pollResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("long poll: decode: %w", err)
	}
	return &result, nil
}

// call invokes a VK API method and decodes the "response" field into out.
func (c *Channel) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	params.Set("access_token", c.cfg.Token)
	params.Set("v", c.cfg.APIVersion)

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.APIBase+"/"+method, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = params.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s: api error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	if out != nil && len(envelope.Response) > 0 {
		if err := json.Unmarshal(envelope.Response, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
	}
	return nil
}

// randomID returns a correlation id in VK's valid range [1, 2^31-1].
func randomID() int64 {
	return int64(rand.Int32N(math.MaxInt32)) + 1
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
