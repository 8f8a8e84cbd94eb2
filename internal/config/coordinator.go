package config

import (
	"fmt"
	"os"
	"time"
)

const (
	coordinatorConfigEnv = "COORDINATOR_CONFIG"
	databasePathEnv      = "DATABASE_PATH"
	workerTokenEnv       = "WORKER_TOKEN"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
)

// Storage drivers understood by the coordinator.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Coordinator holds high-level settings of the coordinating service.
type Coordinator struct {
	Listen        string             `yaml:"listen" toml:"listen"`
	Storage       StorageConfig      `yaml:"storage" toml:"storage"`
	Registry      RegistryConfig     `yaml:"registry" toml:"registry"`
	Gateway       GatewayConfig      `yaml:"gateway" toml:"gateway"`
	Disclosure    DisclosureConfig   `yaml:"disclosure" toml:"disclosure"`
	Auth          AuthConfig         `yaml:"auth" toml:"auth"`
	Notifications NotificationConfig `yaml:"notifications" toml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" toml:"logging"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// RegistryConfig defines heartbeat staleness thresholds.
type RegistryConfig struct {
	ReconcileInterval Duration `yaml:"reconcileInterval" toml:"reconcileInterval"`
	IdleAfter         Duration `yaml:"idleAfter" toml:"idleAfter"`
	OfflineAfter      Duration `yaml:"offlineAfter" toml:"offlineAfter"`
	ErrorHistory      int      `yaml:"errorHistory" toml:"errorHistory"`
}

// GatewayConfig tunes dedup and the inbox queue.
type GatewayConfig struct {
	DedupWindow Duration `yaml:"dedupWindow" toml:"dedupWindow"`
	InboxCap    int      `yaml:"inboxCap" toml:"inboxCap"`
	FeedCap     int      `yaml:"feedCap" toml:"feedCap"`
}

// DisclosureConfig drives the progression engine.
type DisclosureConfig struct {
	Timezone string `yaml:"timezone" toml:"timezone"`
	// Capabilities maps a feature flag to the environment variable whose
	// presence makes it available.
	Capabilities map[string]string `yaml:"capabilities" toml:"capabilities"`

	location *time.Location
}

// Location resolves the disclosure timezone string to a time.Location.
func (d DisclosureConfig) Location() *time.Location {
	if d.location != nil {
		return d.location
	}
	return time.UTC
}

// AuthConfig guards worker-facing routes.
type AuthConfig struct {
	WorkerToken   string  `yaml:"workerToken" toml:"workerToken"`
	RatePerSecond float64 `yaml:"ratePerSecond" toml:"ratePerSecond"`
	Burst         int     `yaml:"burst" toml:"burst"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken" toml:"botToken"`
	ChatID   string `yaml:"chatId" toml:"chatId"`
}

// Enabled reports whether both bot token and chat are configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// LoadCoordinator reads YAML/TOML configuration (if present) and applies environment overrides.
func LoadCoordinator(path string) (Coordinator, error) {
	cfg := DefaultCoordinator()

	if path = resolvePath(path, coordinatorConfigEnv); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Coordinator{}, fmt.Errorf("config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	loc, err := loadLocation(cfg.Disclosure.Timezone)
	if err != nil {
		return Coordinator{}, err
	}
	cfg.Disclosure.location = loc

	if err := cfg.Validate(); err != nil {
		return Coordinator{}, err
	}
	return cfg, nil
}

func (c *Coordinator) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Storage.Driver = StorageSQLite
		c.Storage.Path = v
	}
	if v := os.Getenv(workerTokenEnv); v != "" {
		c.Auth.WorkerToken = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	c.Logging.applyEnvOverrides()
}

// Validate checks if the configuration has usable values.
func (c Coordinator) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	}
	if c.Registry.IdleAfter.Duration <= 0 || c.Registry.OfflineAfter.Duration <= c.Registry.IdleAfter.Duration {
		return fmt.Errorf("%w: registry thresholds must satisfy 0 < idleAfter < offlineAfter", ErrInvalid)
	}
	if c.Registry.ReconcileInterval.Duration <= 0 {
		return fmt.Errorf("%w: registry.reconcileInterval must be positive", ErrInvalid)
	}
	if c.Gateway.DedupWindow.Duration <= 0 {
		return fmt.Errorf("%w: gateway.dedupWindow must be positive", ErrInvalid)
	}
	if c.Gateway.InboxCap < 1 {
		return fmt.Errorf("%w: gateway.inboxCap must be at least 1", ErrInvalid)
	}
	return nil
}

// DefaultCoordinator returns the settings used when nothing overrides them.
func DefaultCoordinator() Coordinator {
	return Coordinator{
		Listen:  ":8088",
		Storage: StorageConfig{Driver: StorageMemory},
		Registry: RegistryConfig{
			ReconcileInterval: D(30 * time.Second),
			IdleAfter:         D(2 * time.Minute),
			OfflineAfter:      D(5 * time.Minute),
			ErrorHistory:      10,
		},
		Gateway: GatewayConfig{
			DedupWindow: D(24 * time.Hour),
			InboxCap:    200,
			FeedCap:     500,
		},
		Disclosure: DisclosureConfig{
			Timezone: defaultTimezone,
			Capabilities: map[string]string{
				"github_signals": "GITHUB_TOKEN",
			},
		},
		Auth: AuthConfig{
			RatePerSecond: 5,
			Burst:         20,
		},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
	}
}
