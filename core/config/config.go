package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	MCP        MCPConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Whatsapp   WhatsappConfig
	AI         AIConfig
	Monitor    MonitorConfig
	WorkerPool WorkerPoolConfig
	APIKeys    APIKeysConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	OS                 string
	Platform           waCompanionReg.DeviceProps_PlatformType
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type MCPConfig struct {
	Port string
	Host string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
	Stores   string // whatsmeow device stores (one sqlite file per instance)
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
	ValkeyStatusTTL time.Duration
	// Device store URI for whatsmeow when running on Postgres (shared by all instances)
	DeviceStoreURI string
}

type WhatsappConfig struct {
	LogLevel             string
	MaxInstances         int
	QRTimeout            time.Duration
	MaxReconnectAttempts int
	ReconnectBackoffBase time.Duration
	ReconnectBackoffMax  time.Duration
	SendTimeout          time.Duration
}

type AIConfig struct {
	Provider         string
	Model            string
	SystemPrompt     string
	Debounce         time.Duration
	ResponderTimeout time.Duration
	HistoryLimit     int
}

type MonitorConfig struct {
	Interval          time.Duration
	MemoryHighWaterMB int
	IdleThreshold     time.Duration
	ErrorCeiling      int
	EventBuffer       int
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

type APIKeysConfig struct {
	Gemini string
	OpenAI string
	Claude string
	AI     string // Generic/Fallback
}

// Global provides access to the loaded configuration from the command layer.
var Global *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "3000")
	v.SetDefault("app_debug", false)
	v.SetDefault("app_env", "development")
	v.SetDefault("app_os", "AzielCf")
	v.SetDefault("app_base_path", "")
	v.SetDefault("app_base_url", "http://localhost:3000")
	v.SetDefault("app_cors_allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("app_base_dir", "storages")

	v.SetDefault("mcp_port", "8080")
	v.SetDefault("mcp_host", "localhost")

	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("valkey_enabled", false)
	v.SetDefault("valkey_address", "localhost:6379")
	v.SetDefault("valkey_db", 0)
	v.SetDefault("valkey_key_prefix", "azwap:")
	v.SetDefault("valkey_status_ttl", "24h")

	v.SetDefault("whatsapp_log_level", "ERROR")
	v.SetDefault("whatsapp_max_instances", 5)
	v.SetDefault("whatsapp_qr_timeout", "60s")
	v.SetDefault("whatsapp_max_reconnect_attempts", 5)
	v.SetDefault("whatsapp_reconnect_backoff_base", "2s")
	v.SetDefault("whatsapp_reconnect_backoff_max", "60s")
	v.SetDefault("whatsapp_send_timeout", "20s")

	v.SetDefault("ai_provider", "gemini")
	v.SetDefault("ai_debounce_ms", 15000)
	v.SetDefault("ai_responder_timeout", "30s")
	v.SetDefault("ai_history_limit", 20)

	v.SetDefault("monitor_interval", "30s")
	v.SetDefault("monitor_memory_high_water_mb", 512)
	v.SetDefault("monitor_idle_threshold", "30m")
	v.SetDefault("monitor_error_ceiling", 5)
	v.SetDefault("monitor_event_buffer", 200)

	v.SetDefault("message_worker_pool_size", 20)
	v.SetDefault("message_worker_queue_size", 1000)
}

// LoadConfig loads .env (if present), an optional config file and the
// environment into a Config. Flags bound to the global viper win over all.
func LoadConfig() (*Config, error) {
	return LoadFrom(viper.GetViper(), ".")
}

// LoadFrom is LoadConfig with an explicit viper instance and search dir.
func LoadFrom(v *viper.Viper, dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	baseDir := v.GetString("app_base_dir")

	appCfg := AppConfig{
		Version:            "v2.0.0-sales",
		Port:               v.GetString("app_port"),
		Debug:              v.GetBool("app_debug") || v.GetBool("debug"),
		Environment:        v.GetString("app_env"),
		OS:                 v.GetString("app_os"),
		Platform:           waCompanionReg.DeviceProps_PlatformType(1), // Chrome
		BasicAuth:          splitList(v.GetString("app_basic_auth")),
		BasePath:           v.GetString("app_base_path"),
		TrustedProxies:     splitList(v.GetString("app_trusted_proxies")),
		BaseUrl:            v.GetString("app_base_url"),
		CorsAllowedOrigins: splitList(v.GetString("app_cors_allowed_origins")),
		ServerID:           v.GetString("server_id"),
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
		Stores:   getString(v, "whatsapp_store_dir", filepath.Join(baseDir, "devices")),
	}

	dbCfg := DatabaseConfig{
		Driver:          v.GetString("db_driver"),
		Name:            getString(v, "db_name", filepath.Join(pathsCfg.Storages, "sales.db")),
		Host:            v.GetString("db_host"),
		Port:            v.GetInt("db_port"),
		User:            v.GetString("db_user"),
		Password:        v.GetString("db_password"),
		ValkeyEnabled:   v.GetBool("valkey_enabled"),
		ValkeyAddress:   v.GetString("valkey_address"),
		ValkeyPassword:  v.GetString("valkey_password"),
		ValkeyDB:        v.GetInt("valkey_db"),
		ValkeyKeyPrefix: v.GetString("valkey_key_prefix"),
		ValkeyStatusTTL: getDuration(v, "valkey_status_ttl", 24*time.Hour),
		DeviceStoreURI:  v.GetString("db_device_store_uri"),
	}

	waCfg := WhatsappConfig{
		LogLevel:             v.GetString("whatsapp_log_level"),
		MaxInstances:         v.GetInt("whatsapp_max_instances"),
		QRTimeout:            getDuration(v, "whatsapp_qr_timeout", 60*time.Second),
		MaxReconnectAttempts: v.GetInt("whatsapp_max_reconnect_attempts"),
		ReconnectBackoffBase: getDuration(v, "whatsapp_reconnect_backoff_base", 2*time.Second),
		ReconnectBackoffMax:  getDuration(v, "whatsapp_reconnect_backoff_max", time.Minute),
		SendTimeout:          getDuration(v, "whatsapp_send_timeout", 20*time.Second),
	}

	aiCfg := AIConfig{
		Provider:         strings.ToLower(v.GetString("ai_provider")),
		Model:            v.GetString("ai_model"),
		SystemPrompt:     v.GetString("ai_system_prompt"),
		Debounce:         time.Duration(v.GetInt("ai_debounce_ms")) * time.Millisecond,
		ResponderTimeout: getDuration(v, "ai_responder_timeout", 30*time.Second),
		HistoryLimit:     v.GetInt("ai_history_limit"),
	}

	monCfg := MonitorConfig{
		Interval:          getDuration(v, "monitor_interval", 30*time.Second),
		MemoryHighWaterMB: v.GetInt("monitor_memory_high_water_mb"),
		IdleThreshold:     getDuration(v, "monitor_idle_threshold", 30*time.Minute),
		ErrorCeiling:      v.GetInt("monitor_error_ceiling"),
		EventBuffer:       v.GetInt("monitor_event_buffer"),
	}

	// Soporte legacy BOT_WORKER_POOL_SIZE
	poolSize := v.GetInt("message_worker_pool_size")
	if legacy := v.GetInt("bot_worker_pool_size"); legacy > 0 {
		poolSize = legacy
	}

	cfg := &Config{
		App:        appCfg,
		MCP:        MCPConfig{Port: v.GetString("mcp_port"), Host: v.GetString("mcp_host")},
		Paths:      pathsCfg,
		Database:   dbCfg,
		Whatsapp:   waCfg,
		AI:         aiCfg,
		Monitor:    monCfg,
		WorkerPool: WorkerPoolConfig{Size: poolSize, QueueSize: v.GetInt("message_worker_queue_size")},
		APIKeys: APIKeysConfig{
			Gemini: v.GetString("gemini_api_key"),
			OpenAI: v.GetString("openai_api_key"),
			Claude: v.GetString("claude_api_key"),
			AI:     v.GetString("ai_api_key"),
		},
	}

	Global = cfg
	return cfg, nil
}
