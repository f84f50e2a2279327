package logger

import (
	"io"
	"os"
	"strings"

	"golang.org/x/exp/slog"
	"gopkg.in/natefinch/lumberjack.v2"

	"assistsync/internal/utils/logger/handlers/slogpretty"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// Options настройки логгера
type Options struct {
	Env   string
	Level string
	// File путь к файлу лога с ротацией; пустая строка - вывод в Output
	File string
	// Output поток вывода, по умолчанию os.Stdout
	Output io.Writer
}

// New создает логгер по окружению: local - цветной вывод, dev - JSON с debug, prod - JSON с info
func New(env string) *slog.Logger {
	return NewWithOptions(Options{Env: env})
}

// NewWithOptions создает логгер с явным уровнем и файлом
func NewWithOptions(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.File != "" {
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
	}

	level, explicit := parseLevel(opts.Level)

	switch opts.Env {
	case envLocal:
		if !explicit {
			level = slog.LevelDebug
		}
		if opts.File == "" {
			return setupPrettySlogTo(out, level)
		}
		return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	case envDev:
		if !explicit {
			level = slog.LevelDebug
		}
	default:
		if !explicit {
			level = slog.LevelInfo
		}
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

func setupPrettySlog() *slog.Logger {
	return setupPrettySlogTo(os.Stdout, slog.LevelDebug)
}

func setupPrettySlogTo(out io.Writer, level slog.Level) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}

	return slog.New(opts.NewPrettyHandler(out))
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
