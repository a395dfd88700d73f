package config

// Config is the root configuration for the estimabot gateway.
type Config struct {
	VK       VKConfig       `json:"vk"`
	Gateway  GatewayConfig  `json:"gateway"`
	Provider ProviderConfig `json:"provider"`
	Notify   NotifyConfig   `json:"notify"`
	Gate     GateConfig     `json:"gate"`
	Intent   IntentConfig   `json:"intent"`
	Sessions SessionsConfig `json:"sessions"`
	Media    MediaConfig    `json:"media"`
	Messages MessagesConfig `json:"messages"`
}

// VKConfig configures the VK Bots Long Poll ingress channel.
// Token is NEVER read from the config file — only from env ESTIMABOT_VK_TOKEN.
type VKConfig struct {
	Token        string `json:"-"`
	GroupID      int64  `json:"group_id"`
	APIVersion   string `json:"api_version,omitempty"`   // default "5.199"
	APIBase      string `json:"api_base,omitempty"`      // override for tests
	Wait         int    `json:"wait,omitempty"`          // long poll wait seconds (default 25)
	BackoffSecs  int    `json:"backoff_secs,omitempty"`  // pause after a failed poll cycle (default 2)
}

// GatewayConfig configures the web ingress HTTP server.
type GatewayConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	MaxImageMB     int    `json:"max_image_mb,omitempty"`    // decoded-equivalent cap (default 10)
	RateLimitRPM   int    `json:"rate_limit_rpm,omitempty"`  // global /chat limit, 0 = disabled
	RequestTimeout int    `json:"request_timeout,omitempty"` // seconds (default 120)
}

// ProviderConfig configures the OpenAI-compatible completion client.
// APIKey is env-only (ESTIMABOT_OPENROUTER_API_KEY).
type ProviderConfig struct {
	APIKey      string `json:"-"`
	APIBase     string `json:"api_base,omitempty"` // default OpenRouter
	Model       string `json:"model,omitempty"`
	MaxTokens   int    `json:"max_tokens,omitempty"`
	Referer     string `json:"referer,omitempty"` // HTTP-Referer header sent to OpenRouter
	Title       string `json:"title,omitempty"`   // X-Title header sent to OpenRouter
	TimeoutSecs int    `json:"timeout_secs,omitempty"`
}

// NotifyConfig configures the Telegram staff-notification mirror.
// Token and ChatID are env-only (ESTIMABOT_TELEGRAM_TOKEN / ESTIMABOT_TELEGRAM_CHAT_ID).
type NotifyConfig struct {
	Token    string   `json:"-"`
	ChatID   int64    `json:"-"`
	Channels []string `json:"channels,omitempty"` // ingress channels mirrored to staff (default ["web"])
}

// GateConfig configures admission control: event dedup and per-user rate limiting.
type GateConfig struct {
	SpamWindowSecs int `json:"spam_window_secs,omitempty"` // min gap between admitted turns per user (default 5)
	DedupeTTLMins  int `json:"dedupe_ttl_mins,omitempty"`  // how long event ids are remembered (default 20)
	DedupeMax      int `json:"dedupe_max,omitempty"`       // event id cache cap (default 5000)
	RateMax        int `json:"rate_max,omitempty"`         // tracked rate-state users cap (default 4096)
}

// IntentConfig configures the fixed intent rules.
type IntentConfig struct {
	SellKeywords []string `json:"sell_keywords,omitempty"`
}

// SessionsConfig bounds the in-memory conversation store.
type SessionsConfig struct {
	MaxHistory   int `json:"max_history,omitempty"`    // entries kept per session beyond the system entry (default 40)
	MaxSessions  int `json:"max_sessions,omitempty"`   // tracked users cap (default 4096)
	IdleTTLHours int `json:"idle_ttl_hours,omitempty"` // evict sessions inactive longer than this (default 12)
}

// MediaConfig configures attachment retrieval.
type MediaConfig struct {
	FetchTimeoutSecs int `json:"fetch_timeout_secs,omitempty"` // default 10
	MaxBytes         int `json:"max_bytes,omitempty"`          // download cap (default 20 MiB)
}

// MessagesConfig carries the user-facing literals. All have Russian defaults
// matching the production persona; override via config for other deployments.
type MessagesConfig struct {
	SystemPrompt    string `json:"system_prompt,omitempty"`
	SellReply       string `json:"sell_reply,omitempty"`
	EmptyReply      string `json:"empty_reply,omitempty"`
	PhotoPrompt     string `json:"photo_prompt,omitempty"`     // substituted when a photo arrives with no text
	NoChoicesReply  string `json:"no_choices_reply,omitempty"` // model returned zero candidates
	FailureReply    string `json:"failure_reply,omitempty"`    // completion call failed
	ImageTooLarge   string `json:"image_too_large,omitempty"`
	NeedInput       string `json:"need_input,omitempty"`
	InternalError   string `json:"internal_error,omitempty"`
	TooManyRequests string `json:"too_many_requests,omitempty"`
}
