package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"general": {"botName": "TestBot", "logLevel": "debug"},
		"channels": {"telegram": {"enabled": true, "token": "abc123"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.BotName != "TestBot" {
		t.Errorf("expected TestBot, got %s", cfg.General.BotName)
	}
	if cfg.Channels.Telegram.Token != "abc123" {
		t.Errorf("token not loaded: %q", cfg.Channels.Telegram.Token)
	}
	// Defaults survive a partial file.
	if cfg.General.MaxConcurrentMessages != 5 {
		t.Errorf("default maxConcurrentMessages lost: %d", cfg.General.MaxConcurrentMessages)
	}
	if cfg.Channels.Web.Port != 8000 {
		t.Errorf("default web port lost: %d", cfg.Channels.Web.Port)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
general:
  botName: YamlBot
channels:
  web:
    enabled: true
    port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.BotName != "YamlBot" {
		t.Errorf("expected YamlBot, got %s", cfg.General.BotName)
	}
	if cfg.Channels.Web.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Channels.Web.Port)
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_TRIAGE_TOKEN", "secret-token")
	defer os.Unsetenv("TEST_TRIAGE_TOKEN")

	out := ExpandEnvVars(`{"token": "${TEST_TRIAGE_TOKEN}"}`)
	if !strings.Contains(out, "secret-token") {
		t.Errorf("env var not expanded: %s", out)
	}

	out = ExpandEnvVars(`{"port": "${TEST_TRIAGE_UNSET:-8000}"}`)
	if !strings.Contains(out, "8000") {
		t.Errorf("default not applied: %s", out)
	}

	out = ExpandEnvVars(`{"x": "${TEST_TRIAGE_UNSET}"}`)
	if !strings.Contains(out, "${TEST_TRIAGE_UNSET}") {
		t.Errorf("unset var without default should stay literal: %s", out)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Web.Port = 99999
	if err := Validate(cfg); err == nil {
		t.Fatal("expected port range error")
	}

	cfg = Defaults()
	cfg.General.MaxConcurrentMessages = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected concurrency range error")
	}

	cfg = Defaults()
	cfg.Speech.Provider = "robotvoice"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected speech provider error")
	}
}

func TestCheckRequired(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = ""
	cfg.Reasoner.APIKey = ""
	err := CheckRequired(cfg)
	if err == nil {
		t.Fatal("expected missing credential error")
	}
	if !strings.Contains(err.Error(), "telegram.token") || !strings.Contains(err.Error(), "reasoner.apiKey") {
		t.Fatalf("error should name both credentials: %v", err)
	}

	cfg.Channels.Telegram.Token = "t"
	cfg.Reasoner.APIKey = "k"
	if err := CheckRequired(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetSetByPath(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "channels.web.port")
	if err != nil {
		t.Fatal(err)
	}
	if val.(float64) != 8000 {
		t.Fatalf("expected 8000, got %v", val)
	}

	if err := SetByPath(cfg, "channels.web.port", "9090"); err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.Web.Port != 9090 {
		t.Fatalf("set did not apply: %d", cfg.Channels.Web.Port)
	}

	if err := SetByPath(cfg, "channels.telegram.enabled", "false"); err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.Telegram.Enabled {
		t.Fatal("bool set did not apply")
	}
}

func TestSanitizeMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Reasoner.APIKey = "gsk_abcdefghijklmnop"
	cfg.Channels.Telegram.Token = "123456:ABCDEFGH"

	clean := Sanitize(cfg)
	if strings.Contains(clean.Reasoner.APIKey, "abcdefghijklm") {
		t.Errorf("api key not masked: %s", clean.Reasoner.APIKey)
	}
	if clean.Channels.Telegram.Token == cfg.Channels.Telegram.Token {
		t.Error("telegram token not masked")
	}
	// Original untouched.
	if cfg.Reasoner.APIKey != "gsk_abcdefghijklmnop" {
		t.Error("sanitize mutated the original")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.General.BotName = "Saved"
	cfg.Channels.Telegram.Token = "tok"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.General.BotName != "Saved" {
		t.Fatalf("round trip lost botName: %s", loaded.General.BotName)
	}
}
