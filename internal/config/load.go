package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name: "anthropic",
		},
		Engine: EngineConfig{
			EventCategory: "weekly",
			Targets: []TargetConfig{
				{Channel: "email_list", Timing: "day_before"},
			},
		},
		Database: DatabaseConfig{
			SQLitePath: "~/.herald/herald.db",
		},
		Sweeper: SweeperConfig{
			Schedule: "*/10 * * * *",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults (env still applies).
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

// applyEnvOverrides overlays env vars onto the config. Secrets only
// ever come from the environment; for the rest, env takes precedence
// over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("HERALD_API_KEY", &c.Provider.APIKey)
	envStr("HERALD_PROVIDER", &c.Provider.Name)
	envStr("HERALD_MODEL", &c.Provider.Model)
	envStr("HERALD_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("HERALD_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("HERALD_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("HERALD_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("HERALD_SMTP_PASSWORD", &c.Delivery.Email.Password)
	envStr("HERALD_BOARD_TOKEN", &c.Delivery.Board.Token)

	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}

	c.Database.SQLitePath = ExpandHome(c.Database.SQLitePath)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
