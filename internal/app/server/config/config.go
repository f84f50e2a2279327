package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env    string
	DB     db
	Server server
	Sync   syncLimits
	Logger logger
}

type db struct {
	DatabaseURI string `env:"DATABASE_URI"`
	Migrations  string `env:"MIGRATIONS_PATH"`
}

type server struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT_SECONDS"`
	Realtime        bool          `env:"SYNC_REALTIME"`
}

type syncLimits struct {
	BatchSize      int `env:"SYNC_BATCH_SIZE"`
	MaxSyncRecords int `env:"SYNC_MAX_RECORDS"`
}

type logger struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// MustLoad читает конфигурацию сервера из окружения и .env, паникует при ошибке
func MustLoad() *Config {
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("failed to load %s: %v", envPath, err)
		}
	}

	viper.AutomaticEnv()
	viper.SetDefault("RUN_ADDRESS", ":8080")
	viper.SetDefault("APP_ENV", EnvLocal)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MIGRATIONS_PATH", "migrations")
	viper.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)
	viper.SetDefault("SYNC_REALTIME", true)
	viper.SetDefault("SYNC_BATCH_SIZE", 50)
	viper.SetDefault("SYNC_MAX_RECORDS", 1000)

	config := Config{
		Env: viper.GetString("app_env"),
		DB: db{
			DatabaseURI: viper.GetString("database_uri"),
			Migrations:  viper.GetString("migrations_path"),
		},
		Server: server{
			RunAddress:      viper.GetString("run_address"),
			ShutdownTimeout: time.Duration(viper.GetInt("shutdown_timeout_seconds")) * time.Second,
			Realtime:        viper.GetBool("sync_realtime"),
		},
		Sync: syncLimits{
			BatchSize:      viper.GetInt("sync_batch_size"),
			MaxSyncRecords: viper.GetInt("sync_max_records"),
		},
		Logger: logger{LogLevel: viper.GetString("log_level")},
	}

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid server config: %v", err))
	}

	return &config
}

func (c *Config) validate() error {
	if c.DB.DatabaseURI == "" {
		return fmt.Errorf("DATABASE_URI is required")
	}
	if c.Server.RunAddress == "" {
		return fmt.Errorf("RUN_ADDRESS is required")
	}
	if c.Sync.BatchSize <= 0 || c.Sync.MaxSyncRecords < c.Sync.BatchSize {
		return fmt.Errorf("invalid sync limits: batch %d, max %d", c.Sync.BatchSize, c.Sync.MaxSyncRecords)
	}
	return nil
}
