package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with production defaults.
func Default() *Config {
	return &Config{
		VK: VKConfig{
			APIVersion:  "5.199",
			APIBase:     "https://api.vk.com/method",
			Wait:        25,
			BackoffSecs: 2,
		},
		Gateway: GatewayConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxImageMB:     10,
			RateLimitRPM:   60,
			RequestTimeout: 120,
		},
		Provider: ProviderConfig{
			APIBase:     "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-4o-2024-05-13",
			MaxTokens:   1000,
			Referer:     "https://fotoskupka.ru",
			Title:       "Photo Estimator Bot",
			TimeoutSecs: 120,
		},
		Notify: NotifyConfig{
			Channels: []string{"web"},
		},
		Gate: GateConfig{
			SpamWindowSecs: 5,
			DedupeTTLMins:  20,
			DedupeMax:      5000,
			RateMax:        4096,
		},
		Intent: IntentConfig{
			SellKeywords: []string{
				"выкуп", "продать", "продажа", "заберете", "забрать", "как вам продать",
			},
		},
		Sessions: SessionsConfig{
			MaxHistory:   40,
			MaxSessions:  4096,
			IdleTTLHours: 12,
		},
		Media: MediaConfig{
			FetchTimeoutSecs: 10,
			MaxBytes:         20 * 1024 * 1024,
		},
		Messages: MessagesConfig{
			SystemPrompt: "Ты работаешь в скупке фототехники в России. " +
				"Твоя задача — кратко и чётко оценивать камеры и объективы " +
				"в рублях по российским рыночным ценам.",
			SellReply: "На данный момент мы не занимаемся прямым выкупом фототехники — мы производим только оценку.\n\n" +
				"Если вы хотите продать технику, вы можете разместить объявление в нашей группе:\n" +
				"https://vk.com/topic-144479474_53207215\n\n" +
				"Пожалуйста, ознакомьтесь с правилами оформления перед размещением.",
			EmptyReply:      "Пожалуйста, отправьте модель техники или фото.",
			PhotoPrompt:     "Определи, что на фото, и уточни детали для оценки.",
			NoChoicesReply:  "Ошибка: пустой ответ от модели.",
			FailureReply:    "Ошибка при обращении к модели. Попробуйте ещё раз позже.",
			ImageTooLarge:   "Изображение слишком большое. Максимум 10MB.",
			NeedInput:       "Отправьте текст или изображение",
			InternalError:   "Внутренняя ошибка сервера",
			TooManyRequests: "Слишком много запросов. Подождите немного.",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Secrets are only ever read from env, never from the file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("ESTIMABOT_VK_TOKEN", &c.VK.Token)
	envStr("ESTIMABOT_OPENROUTER_API_KEY", &c.Provider.APIKey)
	envStr("ESTIMABOT_TELEGRAM_TOKEN", &c.Notify.Token)

	if v := os.Getenv("ESTIMABOT_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notify.ChatID = id
		}
	}
	if v := os.Getenv("ESTIMABOT_VK_GROUP_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.VK.GroupID = id
		}
	}
}

// NotifyEnabled reports whether the Telegram mirror is configured for a channel.
func (c *Config) NotifyEnabled(channel string) bool {
	if c.Notify.Token == "" || c.Notify.ChatID == 0 {
		return false
	}
	for _, ch := range c.Notify.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}
