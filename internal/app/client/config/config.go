package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"assistsync/internal/domain/sync"
)

const (
	defaultServerAddress = "localhost:8080"
	defaultLogLevel      = "info"
	defaultEnv           = "local"
	defaultConfigDir     = ".assistsync"
	defaultRemoteMode    = RemoteHTTP
)

// Режимы подключения к удаленному хранилищу
const (
	RemoteHTTP     = "http"
	RemotePostgres = "postgres"
)

type Config struct {
	Env           string `mapstructure:"app_env"`
	ServerAddress string `mapstructure:"server_address"`
	EnableTLS     bool   `mapstructure:"enable_tls"`
	RemoteMode    string `mapstructure:"remote_mode"`
	DatabaseURI   string `mapstructure:"database_uri"`
	UserID        string `mapstructure:"user_id"`
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	ConfigDir     string `mapstructure:"config_dir"`
	DataPath      string `mapstructure:"data_path"`
	MetricsAddr   string `mapstructure:"metrics_address"`

	PersistFieldTimestamps bool `mapstructure:"sync_persist_field_timestamps"`

	Sync SyncConfig
}

// SyncConfig параметры движка синхронизации
type SyncConfig struct {
	IntervalSeconds      int  `mapstructure:"sync_interval_seconds"`
	BatchSize            int  `mapstructure:"sync_batch_size"`
	MaxRetries           int  `mapstructure:"sync_max_retries"`
	BackoffBaseMS        int  `mapstructure:"sync_backoff_base_ms"`
	BackoffMaxMS         int  `mapstructure:"sync_backoff_max_ms"`
	BreakerThreshold     int  `mapstructure:"sync_breaker_threshold"`
	BreakerResetMS       int  `mapstructure:"sync_breaker_reset_ms"`
	Realtime             bool `mapstructure:"sync_realtime"`
	ConflictLogSize      int  `mapstructure:"sync_conflict_log_size"`
	RemoteTimeoutSeconds int  `mapstructure:"sync_remote_timeout_seconds"`
}

// MustLoad загружает конфигурацию клиента
func MustLoad() *Config {
	config, err := Load()
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}
	return config
}

// Load читает .env, переменные окружения и значения по умолчанию
func Load() (*Config, error) {
	// Определяем путь к .env файлу (относительно места запуска)
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}

	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	viper.AutomaticEnv()
	setDefaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == defaultConfigDir {
		configDir = filepath.Join(homeDir, configDir)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("ошибка создания директории конфигурации: %w", err)
	}

	dataPath := viper.GetString("DATA_PATH")
	if dataPath == "" {
		dataPath = filepath.Join(configDir, "sync.db")
	}

	config := &Config{
		Env:                    viper.GetString("APP_ENV"),
		ServerAddress:          viper.GetString("SERVER_ADDRESS"),
		EnableTLS:              viper.GetBool("ENABLE_TLS"),
		RemoteMode:             viper.GetString("REMOTE_MODE"),
		DatabaseURI:            viper.GetString("DATABASE_URI"),
		UserID:                 viper.GetString("USER_ID"),
		LogLevel:               viper.GetString("LOG_LEVEL"),
		LogFile:                viper.GetString("LOG_FILE"),
		ConfigDir:              configDir,
		DataPath:               dataPath,
		MetricsAddr:            viper.GetString("METRICS_ADDRESS"),
		PersistFieldTimestamps: viper.GetBool("SYNC_PERSIST_FIELD_TIMESTAMPS"),
		Sync: SyncConfig{
			IntervalSeconds:      viper.GetInt("SYNC_INTERVAL_SECONDS"),
			BatchSize:            viper.GetInt("SYNC_BATCH_SIZE"),
			MaxRetries:           viper.GetInt("SYNC_MAX_RETRIES"),
			BackoffBaseMS:        viper.GetInt("SYNC_BACKOFF_BASE_MS"),
			BackoffMaxMS:         viper.GetInt("SYNC_BACKOFF_MAX_MS"),
			BreakerThreshold:     viper.GetInt("SYNC_BREAKER_THRESHOLD"),
			BreakerResetMS:       viper.GetInt("SYNC_BREAKER_RESET_MS"),
			Realtime:             viper.GetBool("SYNC_REALTIME"),
			ConflictLogSize:      viper.GetInt("SYNC_CONFLICT_LOG_SIZE"),
			RemoteTimeoutSeconds: viper.GetInt("SYNC_REMOTE_TIMEOUT_SECONDS"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", defaultEnv)
	viper.SetDefault("SERVER_ADDRESS", defaultServerAddress)
	viper.SetDefault("ENABLE_TLS", false)
	viper.SetDefault("REMOTE_MODE", defaultRemoteMode)
	viper.SetDefault("LOG_LEVEL", defaultLogLevel)
	viper.SetDefault("CONFIG_DIR", defaultConfigDir)
	viper.SetDefault("SYNC_PERSIST_FIELD_TIMESTAMPS", false)

	defaults := sync.DefaultConfig()
	viper.SetDefault("SYNC_INTERVAL_SECONDS", int(defaults.SyncInterval/time.Second))
	viper.SetDefault("SYNC_BATCH_SIZE", defaults.BatchSize)
	viper.SetDefault("SYNC_MAX_RETRIES", defaults.MaxRetries)
	viper.SetDefault("SYNC_BACKOFF_BASE_MS", int(defaults.BackoffBase/time.Millisecond))
	viper.SetDefault("SYNC_BACKOFF_MAX_MS", int(defaults.BackoffMax/time.Millisecond))
	viper.SetDefault("SYNC_BREAKER_THRESHOLD", defaults.BreakerThreshold)
	viper.SetDefault("SYNC_BREAKER_RESET_MS", int(defaults.BreakerReset/time.Millisecond))
	viper.SetDefault("SYNC_REALTIME", defaults.RealtimeEnabled)
	viper.SetDefault("SYNC_CONFLICT_LOG_SIZE", defaults.ConflictLogSize)
	viper.SetDefault("SYNC_REMOTE_TIMEOUT_SECONDS", int(defaults.RemoteTimeout/time.Second))
}

func (c *Config) validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id не может быть пустым")
	}
	switch c.RemoteMode {
	case RemoteHTTP:
		if c.ServerAddress == "" {
			return fmt.Errorf("server_address не может быть пустым")
		}
	case RemotePostgres:
		if c.DatabaseURI == "" {
			return fmt.Errorf("database_uri обязателен в режиме %s", RemotePostgres)
		}
	default:
		return fmt.Errorf("неизвестный remote_mode: %q", c.RemoteMode)
	}
	if c.Sync.IntervalSeconds <= 0 {
		return fmt.Errorf("sync_interval_seconds должен быть положительным")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync_batch_size должен быть положительным")
	}
	if c.Sync.MaxRetries <= 0 {
		return fmt.Errorf("sync_max_retries должен быть положительным")
	}
	if c.Sync.BackoffBaseMS <= 0 || c.Sync.BackoffMaxMS < c.Sync.BackoffBaseMS {
		return fmt.Errorf("некорректные задержки повтора: base %d ms, max %d ms", c.Sync.BackoffBaseMS, c.Sync.BackoffMaxMS)
	}
	return nil
}

// Engine переводит настройки в конфигурацию движка
func (c *Config) Engine() sync.Config {
	return sync.Config{
		SyncInterval:     time.Duration(c.Sync.IntervalSeconds) * time.Second,
		BatchSize:        c.Sync.BatchSize,
		MaxRetries:       c.Sync.MaxRetries,
		BackoffBase:      time.Duration(c.Sync.BackoffBaseMS) * time.Millisecond,
		BackoffMax:       time.Duration(c.Sync.BackoffMaxMS) * time.Millisecond,
		BreakerThreshold: c.Sync.BreakerThreshold,
		BreakerReset:     time.Duration(c.Sync.BreakerResetMS) * time.Millisecond,
		RealtimeEnabled:  c.Sync.Realtime,
		ConflictLogSize:  c.Sync.ConflictLogSize,
		RemoteTimeout:    time.Duration(c.Sync.RemoteTimeoutSeconds) * time.Second,
	}
}

// BaseURL адрес сервера синхронизации со схемой
func (c *Config) BaseURL() string {
	scheme := "http://"
	if c.EnableTLS {
		scheme = "https://"
	}
	return scheme + c.ServerAddress
}

// IsProd проверяет, prod ли окружение
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// IsDev проверяет, dev ли окружение
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}
