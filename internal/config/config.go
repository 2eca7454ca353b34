// Package config loads cadence settings from defaults, an optional cadence.yaml
// file and CADENCE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sandeepkv93/cadence/internal/generator"
	"github.com/sandeepkv93/cadence/internal/model"
	"github.com/sandeepkv93/cadence/internal/scheduler"
)

const (
	EnvPrefix  = "CADENCE"
	configName = "cadence"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Database   DatabaseConfig
	Generation GenerationConfig
	Scheduler  SchedulerConfig
	Log        LogConfig
	// File is the config file that was read, empty when only defaults and env applied.
	File string
}

type DatabaseConfig struct {
	Path string
}

type GenerationConfig struct {
	MaxCatchUp int
	LeadTime   time.Duration
	// Timezone is applied to rules created without one. Empty means the local zone.
	Timezone string
}

type SchedulerConfig struct {
	Cron   string
	Buffer int
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "cadence.db"},
		Generation: GenerationConfig{
			MaxCatchUp: generator.DefaultMaxCatchUp,
			LeadTime:   model.DefaultLeadTime,
		},
		Scheduler: SchedulerConfig{
			Cron:   scheduler.DefaultCronSpec,
			Buffer: 64,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration. When path is empty cadence.yaml is searched in the
// working directory and in $HOME/.config/cadence; a missing file is not an error.
func Load(path string) (Config, error) {
	def := Default()
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("generation.max_catch_up", def.Generation.MaxCatchUp)
	v.SetDefault("generation.lead_time", def.Generation.LeadTime.String())
	v.SetDefault("generation.timezone", def.Generation.Timezone)
	v.SetDefault("scheduler.cron", def.Scheduler.Cron)
	v.SetDefault("scheduler.buffer", def.Scheduler.Buffer)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", def.Log.File)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := def
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	cfg.Database.Path = v.GetString("database.path")
	cfg.Generation.MaxCatchUp = v.GetInt("generation.max_catch_up")
	cfg.Generation.LeadTime = v.GetDuration("generation.lead_time")
	cfg.Generation.Timezone = strings.TrimSpace(v.GetString("generation.timezone"))
	cfg.Scheduler.Cron = v.GetString("scheduler.cron")
	cfg.Scheduler.Buffer = v.GetInt("scheduler.buffer")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Log.File = v.GetString("log.file")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if c.Generation.MaxCatchUp < 1 {
		return fmt.Errorf("%w: generation.max_catch_up must be positive, got %d", ErrInvalidConfig, c.Generation.MaxCatchUp)
	}
	if c.Generation.LeadTime < 0 {
		return fmt.Errorf("%w: generation.lead_time must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := scheduler.ValidateCronSpec(c.Scheduler.Cron); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Scheduler.Buffer < 1 {
		return fmt.Errorf("%w: scheduler.buffer must be positive", ErrInvalidConfig)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q, expected text or json", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Location resolves generation.timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Generation.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Generation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: generation.timezone %q", ErrInvalidConfig, c.Generation.Timezone)
	}
	return loc, nil
}
