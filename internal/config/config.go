package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config - настройки процесса; файл пулов задаётся отдельно.
type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	Stats    StatsConfig    `yaml:"stats"`
	Registry RegistryConfig `yaml:"registry"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type StatsConfig struct {
	Port       int    `yaml:"port"`
	Addr       string `yaml:"addr"`
	IntervalMS int    `yaml:"interval_ms"`
	Source     string `yaml:"source"`
}

type RegistryConfig struct {
	Namespace        string `yaml:"namespace"`
	SessionTimeoutMS int    `yaml:"session_timeout_ms"`
	InitPollMS       int    `yaml:"init_poll_ms"`
}

// Default returns the settings used when no config file is given.
func Default() Config {
	source, _ := os.Hostname()
	return Config{
		Logger: LoggerConfig{Level: "INFO"},
		Stats: StatsConfig{
			Port:       22222,
			Addr:       "0.0.0.0",
			IntervalMS: 30000,
			Source:     source,
		},
		Registry: RegistryConfig{
			Namespace:        "/nodes",
			SessionTimeoutMS: 30000,
			InitPollMS:       1000,
		},
	}
}

// Load читает YAML поверх Default(). Отсутствующий файл не ошибка.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := c.Logger.SlogLevel(); err != nil {
		return err
	}
	if c.Stats.Port < 0 || c.Stats.Port > 65535 {
		return fmt.Errorf("stats port %d is out of range", c.Stats.Port)
	}
	if c.Stats.IntervalMS <= 0 {
		return fmt.Errorf("stats interval %dms must be positive", c.Stats.IntervalMS)
	}
	if !strings.HasPrefix(c.Registry.Namespace, "/") {
		return fmt.Errorf("registry namespace %q must be absolute", c.Registry.Namespace)
	}
	return nil
}

func (l LoggerConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, fmt.Errorf("logger level %q: %w", l.Level, err)
	}
	return lvl, nil
}

func (s StatsConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMS) * time.Millisecond
}

func (r RegistryConfig) SessionTimeout() time.Duration {
	return time.Duration(r.SessionTimeoutMS) * time.Millisecond
}

func (r RegistryConfig) InitPoll() time.Duration {
	return time.Duration(r.InitPollMS) * time.Millisecond
}
