package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gate.SpamWindowSecs != 5 {
		t.Errorf("spam window default = %d, want 5", cfg.Gate.SpamWindowSecs)
	}
	if cfg.Provider.Model != "openai/gpt-4o-2024-05-13" {
		t.Errorf("model default = %q", cfg.Provider.Model)
	}
	if len(cfg.Intent.SellKeywords) == 0 {
		t.Error("expected default sell keywords")
	}
}

func TestLoadOverlaysFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	// json5: comments and trailing commas are allowed
	body := `{
		// local overrides
		gateway: { host: "127.0.0.1", port: 9090 },
		gate: { spam_window_secs: 2 },
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ESTIMABOT_VK_TOKEN", "vk-secret")
	t.Setenv("ESTIMABOT_TELEGRAM_CHAT_ID", "-100123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Gateway.Port)
	}
	if cfg.Gate.SpamWindowSecs != 2 {
		t.Errorf("spam window = %d, want 2", cfg.Gate.SpamWindowSecs)
	}
	if cfg.VK.Token != "vk-secret" {
		t.Errorf("vk token not taken from env")
	}
	if cfg.Notify.ChatID != -100123 {
		t.Errorf("chat id = %d, want -100123", cfg.Notify.ChatID)
	}
	// untouched sections keep defaults
	if cfg.Provider.MaxTokens != 1000 {
		t.Errorf("max tokens = %d, want 1000", cfg.Provider.MaxTokens)
	}
}

func TestNotifyEnabled(t *testing.T) {
	cfg := Default()
	if cfg.NotifyEnabled("web") {
		t.Error("notify should be disabled without token/chat id")
	}
	cfg.Notify.Token = "t"
	cfg.Notify.ChatID = 1
	if !cfg.NotifyEnabled("web") {
		t.Error("web should be mirrored by default")
	}
	if cfg.NotifyEnabled("vk") {
		t.Error("vk is not in the default mirror list")
	}
}
