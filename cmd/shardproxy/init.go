package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"shardproxy/internal/config"
)

// initConfig читает файл процесса (или Default()) и накладывает явно заданные флаги.
func initConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("stats-port") {
		cfg.Stats.Port = statsPort
	}
	if flags.Changed("stats-addr") {
		cfg.Stats.Addr = statsAddr
	}
	if flags.Changed("stats-interval") {
		cfg.Stats.IntervalMS = statsInterval
	}
	return cfg, cfg.Validate()
}

// initLogger настраивает глобальный slog.Logger (JSON или текстовый).
func initLogger(cfg *config.Config) {
	level, err := cfg.Logger.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", level, "json", cfg.Logger.JSON)
}

