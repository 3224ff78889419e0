package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Mempool      MempoolConfig      `mapstructure:"mempool"`
	MagicEden    MagicEdenConfig    `mapstructure:"magiceden"`
	Mail         MailConfig         `mapstructure:"mail"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// DatabaseConfig selects the gorm dialector backing the store.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`      // "postgres" or "sqlite"
	SQLitePath string `mapstructure:"sqlite_path"` // used when driver is "sqlite"
	CreateDB   bool   `mapstructure:"create_db"`   // create the postgres database on boot
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MempoolConfig points at an esplora compatible API. With WatchBlocks set,
// every new block announced on WSURL triggers a verification sweep.
type MempoolConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	WSURL       string        `mapstructure:"ws_url"`
	WatchBlocks bool          `mapstructure:"watch_blocks"`
}

type MagicEdenConfig struct {
	REST   RESTConfig `mapstructure:"rest"`
	APIKey string     `mapstructure:"api_key"`
	Window string     `mapstructure:"window"` // snapshot window, e.g. "1d"
	Limit  int        `mapstructure:"limit"`  // snapshot collection limit
	// ChartSource is "store" (captured snapshots) or "marketplace" (live timeseries).
	ChartSource string `mapstructure:"chart_source"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// ScheduleConfig holds cron specs with a leading seconds field.
type ScheduleConfig struct {
	VerifyCron        string        `mapstructure:"verify_cron"`
	ExpiryCron        string        `mapstructure:"expiry_cron"`
	SnapshotCron      string        `mapstructure:"snapshot_cron"`
	RepairCron        string        `mapstructure:"repair_cron"`
	SnapshotEnable    bool          `mapstructure:"snapshot_enable"`
	SnapshotRetention time.Duration `mapstructure:"snapshot_retention"` // 0 keeps every sample
	RunOnStart        bool          `mapstructure:"run_on_start"`
	Concurrency       int           `mapstructure:"concurrency"`
}

type SubscriptionConfig struct {
	VerifyWindow     time.Duration `mapstructure:"verify_window"`
	ReminderWindow   time.Duration `mapstructure:"reminder_window"`
	DedupeReminders  bool          `mapstructure:"dedupe_reminders"`
	ReminderCooldown time.Duration `mapstructure:"reminder_cooldown"`
	NotifyExpired    bool          `mapstructure:"notify_expired"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "data/chartgate.db")

	v.SetDefault("redis.prefix", "chartgate")

	v.SetDefault("mempool.base_url", "https://mempool.space/testnet")
	v.SetDefault("mempool.timeout", 10*time.Second)
	v.SetDefault("mempool.ws_url", "wss://mempool.space/testnet/api/v1/ws")
	v.SetDefault("mempool.watch_blocks", false)

	v.SetDefault("magiceden.rest.base_url", "https://api-mainnet.magiceden.dev/v2/ord/btc")
	v.SetDefault("magiceden.rest.timeout", 10*time.Second)
	v.SetDefault("magiceden.window", "1d")
	v.SetDefault("magiceden.limit", 120)
	v.SetDefault("magiceden.chart_source", "store")

	v.SetDefault("mail.port", 587)

	v.SetDefault("schedule.verify_cron", "0 */5 * * * *")
	v.SetDefault("schedule.expiry_cron", "0 0 */6 * * *")
	v.SetDefault("schedule.snapshot_cron", "0 */15 * * * *")
	v.SetDefault("schedule.repair_cron", "0 30 * * * *")
	v.SetDefault("schedule.snapshot_enable", false)
	v.SetDefault("schedule.snapshot_retention", 30*24*time.Hour)
	v.SetDefault("schedule.concurrency", 8)

	v.SetDefault("subscription.verify_window", 72*time.Hour)
	v.SetDefault("subscription.reminder_window", 72*time.Hour)
	v.SetDefault("subscription.reminder_cooldown", 20*time.Hour)
	v.SetDefault("subscription.notify_expired", true)
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	// Support environment variables with dot notation (e.g., SCHEDULE_VERIFY_CRON)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

// Validate checks the fields the scheduler and clients cannot run without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Mempool.BaseURL == "" {
		return fmt.Errorf("mempool.base_url is required")
	}
	if c.Mempool.WatchBlocks && c.Mempool.WSURL == "" {
		return fmt.Errorf("mempool.ws_url is required when mempool.watch_blocks is set")
	}
	if c.MagicEden.REST.BaseURL == "" {
		return fmt.Errorf("magiceden.rest.base_url is required")
	}
	switch c.MagicEden.ChartSource {
	case "store", "marketplace":
	default:
		return fmt.Errorf("magiceden.chart_source must be store or marketplace, got %q", c.MagicEden.ChartSource)
	}
	if c.Subscription.VerifyWindow <= 0 {
		return fmt.Errorf("subscription.verify_window must be positive")
	}
	if c.Subscription.ReminderWindow <= 0 {
		return fmt.Errorf("subscription.reminder_window must be positive")
	}
	if c.Subscription.DedupeReminders && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when subscription.dedupe_reminders is set")
	}
	return nil
}
