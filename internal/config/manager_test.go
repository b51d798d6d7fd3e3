package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"storage": {"driver": "file", "path": "./jobs.json"},
		"scheduler": {"workers": 4, "timezone": "Asia/Kolkata", "missed_policy": "run"},
		"http": {"addr": "127.0.0.1:5000"},
		"channels": {
			"sms": {"account_sid": "AC1", "auth_token": "t", "from": "+1555", "country_prefix": "+91"}
		}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != "./jobs.json" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Scheduler.Workers != 4 || cfg.Scheduler.MissedPolicy != "run" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Channels.SMS == nil || cfg.Channels.SMS.CountryPrefix != "+91" {
		t.Fatalf("channels = %+v", cfg.Channels)
	}
	if cfg.Channels.Email != nil {
		t.Fatal("absent email channel should stay nil")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
storage:
  driver: sqlite
  path: ./jobs.db
  busy_timeout: 2s
scheduler:
  delivery_timeout: 45s
channels:
  email:
    host: smtp.example.com
    port: 587
    from: svc@example.com
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "2s" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Channels.Email == nil || cfg.Channels.Email.Port != 587 {
		t.Fatalf("email = %+v", cfg.Channels.Email)
	}
	d, err := ParseDurationOrDefault("scheduler.delivery_timeout", cfg.Scheduler.DeliveryTimeout, time.Second)
	if err != nil || d != 45*time.Second {
		t.Fatalf("delivery_timeout = %v, %v", d, err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}, "bogus": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown top-level field accepted")
	}

	path = writeConfig(t, "config2.json", `{"scheduler": {"wrokers": 2}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("misspelled field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}} {"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON document accepted")
	}
}

func TestLoadAndGet(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"http": {"addr": ":0"}}`)
	m := NewManager(path)
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestReloadPublishesChange(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	// Identical content: hash suppression keeps subscribers quiet.
	m.reload()
	select {
	case cfg := <-ch:
		t.Fatalf("unchanged config was published: %+v", cfg)
	case <-time.After(100 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte(`{"logging": {"level": "debug"}}`), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload()
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published config = %+v", cfg)
		}
	case <-time.After(time.Second):
		t.Fatal("changed config was not published")
	}
}

func TestReloadKeepsPreviousOnParseError(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{broken`), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload()
	if cfg := m.Get(); cfg == nil || cfg.Logging.Level != "info" {
		t.Fatalf("previous config lost after bad reload: %+v", cfg)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("delivery_timeout", "1m30s")
	if err != nil || d != 90*time.Second {
		t.Fatalf("ParseDurationField = %v, %v", d, err)
	}
	if _, err := ParseDurationField("delivery_timeout", "soon"); err == nil {
		t.Fatal("invalid duration accepted")
	}
	if _, err := ParseDurationField("delivery_timeout", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if d, err := ParseDurationOrDefault("delivery_timeout", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("empty duration default = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("delivery_timeout", "nope", 5*time.Second); err == nil {
		t.Fatal("bad duration should error, not default")
	}
}
