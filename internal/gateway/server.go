// Package gateway serves the web ingress: POST /chat for the site widget and
// GET /health for monitoring. Each request runs the same core pipeline as the
// polling channel, concurrently with it.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/fotoskupka/estimabot/internal/agent"
	"github.com/fotoskupka/estimabot/internal/bus"
	"github.com/fotoskupka/estimabot/internal/config"
	"github.com/fotoskupka/estimabot/internal/dispatch"
	"github.com/fotoskupka/estimabot/internal/gate"
)

// Server is the web ingress HTTP server.
type Server struct {
	cfg        config.GatewayConfig
	msgs       config.MessagesConfig
	engine     *agent.Engine
	dispatcher *dispatch.Dispatcher
	limiter    *rate.Limiter

	httpServer *http.Server
	mux        *http.ServeMux
}

// Sender is the web channel's outbound side: the reply travels back in the
// HTTP response body, so the send itself cannot fail separately.
type Sender struct{}

func (Sender) Name() string { return "web" }

func (Sender) Send(ctx context.Context, userID, content string) error { return nil }

func NewServer(cfg config.GatewayConfig, msgs config.MessagesConfig, engine *agent.Engine, dispatcher *dispatch.Dispatcher) *Server {
	s := &Server{
		cfg:        cfg,
		msgs:       msgs,
		engine:     engine,
		dispatcher: dispatcher,
	}
	if cfg.RateLimitRPM > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), cfg.RateLimitRPM)
	}
	return s
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.withCORS(s.handleChat))
	mux.HandleFunc("/health", s.withCORS(s.handleHealth))

	s.mux = mux
	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	timeout := time.Duration(s.cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.BuildMux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: timeout,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen on %s: %w", addr, err)
	}

	slog.Info("web gateway listening", "addr", addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("web gateway serve failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// withCORS answers preflight requests and stamps permissive CORS headers;
// the widget is embedded on third-party pages and mobile webviews.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Text        string `json:"text"`
	ImageBase64 string `json:"image_base64"`
}

type chatResponse struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, chatResponse{Error: s.msgs.InternalError})
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, chatResponse{Error: s.msgs.TooManyRequests})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: s.msgs.NeedInput})
		return
	}

	req.Text = strings.TrimSpace(req.Text)

	if req.ImageBase64 != "" {
		// decoded-equivalent size without actually decoding
		sizeMB := float64(len(req.ImageBase64)) * 3 / 4 / 1024 / 1024
		if sizeMB > float64(s.cfg.MaxImageMB) {
			slog.Warn("web: image rejected", "size_mb", fmt.Sprintf("%.2f", sizeMB))
			writeJSON(w, http.StatusBadRequest, chatResponse{Error: s.msgs.ImageTooLarge})
			return
		}
	}

	if req.Text == "" && req.ImageBase64 == "" {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: s.msgs.NeedInput})
		return
	}

	userID := webUserID(r.RemoteAddr)
	turn := bus.InboundMessage{
		Channel:    "web",
		EventID:    uuid.NewString(),
		UserID:     userID,
		Text:       req.Text,
		PhotoData:  req.ImageBase64,
		ReceivedAt: time.Now(),
	}

	slog.Info("web: chat request", "user", userID,
		"has_image", req.ImageBase64 != "", "ua", r.Header.Get("User-Agent"))

	content, decision := s.engine.Process(r.Context(), turn)
	if decision == gate.DroppedRateLimited {
		writeJSON(w, http.StatusTooManyRequests, chatResponse{Error: s.msgs.TooManyRequests})
		return
	}
	if content == "" {
		writeJSON(w, http.StatusInternalServerError, chatResponse{Error: s.msgs.InternalError})
		return
	}

	// Delivery bookkeeping (digest record + staff mirror). A Suppressed
	// outcome only skips those; the response body still carries the reply,
	// since this client explicitly asked.
	s.dispatcher.Deliver(r.Context(), bus.OutboundMessage{
		Channel: "web",
		UserID:  userID,
		Input:   req.Text,
		Content: content,
	})

	writeJSON(w, http.StatusOK, chatResponse{Reply: content})
}

// webUserID derives a stable identity from the client address.
// "203.0.113.9:54321" → "web-user-203-0-113-9".
func webUserID(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	host = strings.NewReplacer(".", "-", ":", "-").Replace(host)
	return "web-user-" + host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("web: write response failed", "error", err)
	}
}
