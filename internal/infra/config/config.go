package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageBolt     = "bolt"
	StoragePostgres = "postgres"
)

// AppConfig holds all configuration for the agent.
type AppConfig struct {
	BackendURL     string // Origin of the ZVIT backend, e.g. https://zvit.example.com
	APIRoot        string // Path of the REST API under the origin
	CacheAPIPrefix string // GET paths under this prefix are network-first
	ShellURL       string
	CacheVersion   string
	ListenAddr     string
	PublicURL      string // Base URL windows are opened at
	RequestTimeout time.Duration
	BackgroundSync bool // Queue reports sent while offline and replay them later

	StorageDriver string
	BoltPath      string
	DatabaseURL   string

	ShoutrrrURLs    []string
	NotificationTTL time.Duration
	TelegramToken   string
	TelegramChatID  int64

	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	CronSpecSync          string // Connectivity check + sync trigger
	CronSpecReminderCheck string // Scheduled report reminders, once a minute
	CronSpecGroupsRefresh string

	WindowOpenerCommand string

	LogLevel    string
	Environment string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_root", "/api/v1")
	v.SetDefault("cache_api_prefix", "/api/")
	v.SetDefault("shell_url", "/app")
	v.SetDefault("cache_version", "v1")
	v.SetDefault("listen_addr", "127.0.0.1:8088")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("background_sync", true)
	v.SetDefault("storage_driver", StorageBolt)
	v.SetDefault("bolt_path", "zvit-agent.db")
	v.SetDefault("notification_ttl", 24*time.Hour)
	v.SetDefault("redis_channel", "zvit:push")
	v.SetDefault("cron_spec_sync", "@every 30s")
	v.SetDefault("cron_spec_reminder_check", "* * * * *")
	v.SetDefault("cron_spec_groups_refresh", "*/15 * * * *")
	v.SetDefault("log_level", "info")
	v.SetDefault("environment", "development")
}

// Load reads configuration from environment variables and .env file (if present).
// Variables use the ZVIT_ prefix; DATABASE_URL, LOG_LEVEL and ENVIRONMENT are
// also read without it.
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ZVIT")
	v.AutomaticEnv()
	setDefaults(v)
	for _, key := range []string{"database_url", "log_level", "environment"} {
		if err := v.BindEnv(key, "ZVIT_"+strings.ToUpper(key), strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		BackendURL:            strings.TrimRight(v.GetString("backend_url"), "/"),
		APIRoot:               "/" + strings.Trim(v.GetString("api_root"), "/"),
		CacheAPIPrefix:        v.GetString("cache_api_prefix"),
		ShellURL:              v.GetString("shell_url"),
		CacheVersion:          v.GetString("cache_version"),
		ListenAddr:            v.GetString("listen_addr"),
		PublicURL:             strings.TrimRight(v.GetString("public_url"), "/"),
		RequestTimeout:        v.GetDuration("request_timeout"),
		BackgroundSync:        v.GetBool("background_sync"),
		StorageDriver:         strings.ToLower(v.GetString("storage_driver")),
		BoltPath:              v.GetString("bolt_path"),
		DatabaseURL:           v.GetString("database_url"),
		ShoutrrrURLs:          splitList(v.GetString("shoutrrr_urls")),
		NotificationTTL:       v.GetDuration("notification_ttl"),
		TelegramToken:         v.GetString("telegram_token"),
		TelegramChatID:        v.GetInt64("telegram_chat_id"),
		RedisAddr:             v.GetString("redis_addr"),
		RedisPassword:         v.GetString("redis_password"),
		RedisChannel:          v.GetString("redis_channel"),
		CronSpecSync:          v.GetString("cron_spec_sync"),
		CronSpecReminderCheck: v.GetString("cron_spec_reminder_check"),
		CronSpecGroupsRefresh: v.GetString("cron_spec_groups_refresh"),
		WindowOpenerCommand:   v.GetString("window_opener"),
		LogLevel:              strings.ToLower(v.GetString("log_level")),
		Environment:           strings.ToLower(v.GetString("environment")),
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("ZVIT_BACKEND_URL is not set")
	}
	if u, err := url.Parse(cfg.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ZVIT_BACKEND_URL %q", cfg.BackendURL)
	}

	switch cfg.StorageDriver {
	case StorageBolt:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set (required for storage driver %q)", StoragePostgres)
		}
	default:
		return nil, fmt.Errorf("unknown ZVIT_STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("ZVIT_TELEGRAM_CHAT_ID is required when ZVIT_TELEGRAM_TOKEN is set")
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://" + cfg.ListenAddr
	}

	return cfg, nil
}

// Cache names carry the deployment version; the pending-report cache does not.
func (c *AppConfig) StaticCacheName() string  { return "zvit-static-" + c.CacheVersion }
func (c *AppConfig) DynamicCacheName() string { return "zvit-dynamic-" + c.CacheVersion }

// APIBaseURL is the full URL of the backend REST API.
func (c *AppConfig) APIBaseURL() string {
	return c.BackendURL + c.APIRoot
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
