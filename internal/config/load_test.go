package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider.Name != "anthropic" {
		t.Errorf("provider = %q, want anthropic default", cfg.Provider.Name)
	}
	if cfg.Engine.EventCategory != "weekly" {
		t.Errorf("event category = %q, want weekly default", cfg.Engine.EventCategory)
	}
	if len(cfg.Engine.Targets) != 1 || cfg.Engine.Targets[0].Channel != "email_list" {
		t.Errorf("targets = %+v, want the email_list default", cfg.Engine.Targets)
	}
	if len(cfg.Database.SQLitePath) > 0 && cfg.Database.SQLitePath[0] == '~' {
		t.Errorf("sqlite path = %q, tilde must be expanded on load", cfg.Database.SQLitePath)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	tests := []struct {
		path string
		want string
	}{
		{"~/.herald/herald.db", home + "/.herald/herald.db"},
		{"~", home},
		{"/var/lib/herald.db", "/var/lib/herald.db"},
		{"relative/herald.db", "relative/herald.db"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.path); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLoad_JSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
	// comments are fine
	provider: {name: "openai", model: "gpt-4o-mini"},
	engine: {
		event_category: "monthly",
		targets: [
			{channel: "community_board"},
			{channel: "email_list", timing: "week_before"},
		],
	},
	delivery: {email: {host: "smtp.example.org", port: 587, list_addr: "all@example.org"}},
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider.Name != "openai" || cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Engine.EventCategory != "monthly" || len(cfg.Engine.Targets) != 2 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Delivery.Email.Host != "smtp.example.org" || cfg.Delivery.Email.Port != 587 {
		t.Errorf("email config = %+v", cfg.Delivery.Email)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HERALD_API_KEY", "sk-test")
	t.Setenv("HERALD_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("HERALD_POSTGRES_DSN", "postgres://h:h@localhost/herald")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("api key = %q, want env value", cfg.Provider.APIKey)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tg-token" {
		t.Errorf("telegram = %+v, want auto-enabled by token", cfg.Channels.Telegram)
	}
	if !cfg.IsPostgres() {
		t.Error("DSN in env must select postgres")
	}
}

func TestSecretsNeverSerialized(t *testing.T) {
	// Secret fields are tagged json:"-"; a config round-trip must not
	// leak them into a file.
	cfg := Default()
	cfg.Provider.APIKey = "sk-secret"
	cfg.Database.PostgresDSN = "postgres://secret"
	cfg.Delivery.Email.Password = "hunter2"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"sk-secret", "postgres://secret", "hunter2"} {
		if bytes.Contains(data, []byte(secret)) {
			t.Errorf("serialized config leaks secret %q", secret)
		}
	}
}
