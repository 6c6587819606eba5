package config

import (
	"github.com/nextlevelbuilder/herald/internal/delivery"
)

// Config is the root configuration for the Herald service.
type Config struct {
	Provider ProviderConfig `json:"provider"`
	Engine   EngineConfig   `json:"engine"`
	Channels ChannelsConfig `json:"channels"`
	Delivery DeliveryConfig `json:"delivery"`
	Database DatabaseConfig `json:"database,omitempty"`
	Sweeper  SweeperConfig  `json:"sweeper,omitempty"`
}

// ProviderConfig selects the LLM provider used for classification and
// draft generation.
type ProviderConfig struct {
	Name            string `json:"name"` // "anthropic" (default) or "openai"
	Model           string `json:"model,omitempty"`
	ClassifierModel string `json:"classifier_model,omitempty"` // cheaper model for classification; defaults to Model
	APIKey          string `json:"-"`                          // from env HERALD_API_KEY only
	BaseURL         string `json:"base_url,omitempty"`
}

// EngineConfig tunes the detection pipeline.
type EngineConfig struct {
	EventCategory string         `json:"event_category,omitempty"` // "weekly" (default) or "monthly"
	Targets       []TargetConfig `json:"targets,omitempty"`
}

// TargetConfig names one outbound destination drafts are produced for.
type TargetConfig struct {
	Channel string `json:"channel"`          // "email_list", "community_board", "direct_message"
	Timing  string `json:"timing,omitempty"` // "week_before", "day_before", "hour_before", "day_of"
}

// ChannelsConfig configures the chat-surface adapters.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	Enabled      bool     `json:"enabled,omitempty"`
	Token        string   `json:"-"` // from env HERALD_TELEGRAM_TOKEN only
	AllowedChats []string `json:"allowed_chats,omitempty"`
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Enabled         bool     `json:"enabled,omitempty"`
	Token           string   `json:"-"` // from env HERALD_DISCORD_TOKEN only
	AllowedChannels []string `json:"allowed_channels,omitempty"`
}

// DeliveryConfig configures the outbound send collaborators.
type DeliveryConfig struct {
	Email         delivery.EmailConfig `json:"email,omitempty"`
	Board         delivery.BoardConfig `json:"board,omitempty"`
	DirectMessage DMConfig             `json:"direct_message,omitempty"`
}

// DMConfig pins the direct-message delivery destination. Empty fields
// fall back to each draft's origin channel.
type DMConfig struct {
	Surface   string `json:"surface,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// DatabaseConfig selects the durable store.
// PostgresDSN is NEVER read from the config file (secret) — only from
// env HERALD_POSTGRES_DSN. When set, Postgres is used; otherwise a
// local SQLite file.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// SweeperConfig tunes the expiry sweeps.
type SweeperConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron expression
}

// IsPostgres reports whether the durable store is Postgres.
func (c *Config) IsPostgres() bool {
	return c.Database.PostgresDSN != ""
}
