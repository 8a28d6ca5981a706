package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultFocusMinutes = 25
	DefaultBreakMinutes = 5
	DefaultCycles       = 1
)

type TimerConfig struct {
	FocusMinutes          int  `mapstructure:"focus_minutes"`
	BreakMinutes          int  `mapstructure:"break_minutes"`
	Cycles                int  `mapstructure:"cycles"`
	TickIntervalMs        int  `mapstructure:"tick_interval_ms"`
	AutoSelectFirstTask   bool `mapstructure:"auto_select_first_task"`
	PersistTimeoutSeconds int  `mapstructure:"persist_timeout_seconds"`
}

type Config struct {
	DatabasePath string      `mapstructure:"database_path"`
	SettingsPath string      `mapstructure:"settings_path"`
	SocketPath   string      `mapstructure:"socket_path"`
	Timer        TimerConfig `mapstructure:"timer"`
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/focustimer")
		v.AddConfigPath("/etc/focustimer/")
	}

	v.SetEnvPrefix("FOCUSTIMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using defaults.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.sanitize()

	log.Printf("Configuration loaded: %+v", cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "focustimer.db")
	v.SetDefault("settings_path", defaultSettingsPath())
	v.SetDefault("socket_path", "/tmp/focustimer.sock")
	v.SetDefault("timer.focus_minutes", DefaultFocusMinutes)
	v.SetDefault("timer.break_minutes", DefaultBreakMinutes)
	v.SetDefault("timer.cycles", DefaultCycles)
	v.SetDefault("timer.tick_interval_ms", 1000)
	v.SetDefault("timer.auto_select_first_task", true)
	v.SetDefault("timer.persist_timeout_seconds", 5)
}

func defaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "settings.yaml"
	}
	return filepath.Join(home, ".config", "focustimer", "settings.yaml")
}

func (c *Config) sanitize() {
	if c.Timer.FocusMinutes < 1 {
		log.Printf("Warning: timer.focus_minutes must be positive, defaulting to %d", DefaultFocusMinutes)
		c.Timer.FocusMinutes = DefaultFocusMinutes
	}
	if c.Timer.BreakMinutes < 1 {
		log.Printf("Warning: timer.break_minutes must be positive, defaulting to %d", DefaultBreakMinutes)
		c.Timer.BreakMinutes = DefaultBreakMinutes
	}
	if c.Timer.Cycles < 1 {
		log.Printf("Warning: timer.cycles must be positive, defaulting to %d", DefaultCycles)
		c.Timer.Cycles = DefaultCycles
	}
	if c.Timer.TickIntervalMs < 1 {
		log.Println("Warning: timer.tick_interval_ms too low, setting to 1000")
		c.Timer.TickIntervalMs = 1000
	}
	if c.Timer.PersistTimeoutSeconds < 1 {
		log.Println("Warning: timer.persist_timeout_seconds too low, setting to 5")
		c.Timer.PersistTimeoutSeconds = 5
	}
}

func (t TimerConfig) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalMs) * time.Millisecond
}

func (t TimerConfig) PersistTimeout() time.Duration {
	return time.Duration(t.PersistTimeoutSeconds) * time.Second
}
