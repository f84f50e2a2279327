// cmd/client/cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"assistsync/internal/app/client"
	"assistsync/internal/app/client/config"
	"assistsync/internal/utils/logger"
)

var (
	cfgFile   string
	cfg       *config.Config
	log       *slog.Logger
	app       *client.App
	debug     bool
	serverURL string
	userID    string
)

var rootCmd = &cobra.Command{
	Use:   "assistsync",
	Short: "assistsync - офлайн-клиент синхронизации данных ассистента",
	Long: `assistsync хранит сообщения, задачи, заметки и другие коллекции
в локальной базе и синхронизирует их с сервером в обе стороны.

Изменения сначала записываются локально и попадают в очередь отправки,
поэтому клиент работает и без сети.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	// справке не нужны ни конфигурация, ни база
	if cmd.Name() == "help" {
		return nil
	}

	var err error
	cfg, err = loadConfig()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Переопределяем настройки из флагов командной строки
	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}
	if debug {
		cfg.LogLevel = "debug"
	}

	log = logger.NewWithOptions(logger.Options{
		Env:    cfg.Env,
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Output: os.Stderr,
	})

	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(client.WithApp(ctx, app))

	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app != nil {
		app.Close()
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Ищем конфиг в стандартных местах
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		viper.AddConfigPath(filepath.Join(home, ".assistsync"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Конфиг не найден, используем окружение и значения по умолчанию
	}

	if userID != "" {
		viper.Set("USER_ID", userID)
	}

	return config.Load()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный режим")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера синхронизации")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "идентификатор пользователя")
}
