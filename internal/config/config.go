package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config keeps runtime settings for glance.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Digest      DigestConfig      `yaml:"digest"`
	Telegram    TelegramConfig    `yaml:"telegram"`
}

type DatabaseConfig struct {
	Path        string        `yaml:"path"         env:"GLANCE_DB_PATH"      env-default:"glance.db" validate:"required"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"GLANCE_BUSY_TIMEOUT" env-default:"5s"        validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"GLANCE_LOG_LEVEL"  env-default:"info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" env:"GLANCE_LOG_FORMAT" env-default:"text" validate:"oneof=text json"`
}

// MaintenanceConfig drives the daily job and health warnings.
type MaintenanceConfig struct {
	// DataDir holds maintenance state; empty means next to the database.
	DataDir          string        `yaml:"data_dir"           env:"GLANCE_DATA_DIR"`
	DailyAt          string        `yaml:"daily_at"           env:"GLANCE_DAILY_AT"           env-default:"00:05" validate:"required"`
	Timezone         string        `yaml:"timezone"           env:"GLANCE_TIMEZONE"           env-default:"Local"`
	TaskCountWarning int64         `yaml:"task_count_warning" env:"GLANCE_TASK_COUNT_WARNING" env-default:"5000"  validate:"gte=0"`
	DBSizeWarnMB     int64         `yaml:"db_size_warn_mb"    env:"GLANCE_DB_SIZE_WARN_MB"    env-default:"200"   validate:"gte=0"`
	HistoryDays      int           `yaml:"history_days"       env:"GLANCE_HISTORY_DAYS"       env-default:"180"   validate:"gt=0"`
	// IndexCheckEvery is how often serve probes the search index; 0 disables it.
	IndexCheckEvery  time.Duration `yaml:"index_check_every" env:"GLANCE_INDEX_CHECK_EVERY"  env-default:"1h"    validate:"gte=0"`
}

type DigestConfig struct {
	Enabled bool   `yaml:"enabled" env:"GLANCE_DIGEST_ENABLED" env-default:"false"`
	At      string `yaml:"at"      env:"GLANCE_DIGEST_AT"      env-default:"08:00"`
}

type TelegramConfig struct {
	Token   string  `yaml:"token"    env:"GLANCE_TELEGRAM_TOKEN"`
	ChatIDs []int64 `yaml:"chat_ids" env:"GLANCE_TELEGRAM_CHAT_IDS" env-separator:","`
}

// Load reads configuration from a YAML file and environment variables.
// The file is taken from GLANCE_CONFIG, falling back to ./glance.yaml; when
// that default is absent only the environment and defaults are used.
func Load() (Config, error) {
	var cfg Config

	path := os.Getenv("GLANCE_CONFIG")
	explicit := path != ""
	if !explicit {
		path = "./glance.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit {
		return cfg, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := checkClock(c.Maintenance.DailyAt); err != nil {
		return fmt.Errorf("maintenance.daily_at: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("maintenance.timezone: %w", err)
	}
	if c.Digest.Enabled {
		if err := checkClock(c.Digest.At); err != nil {
			return fmt.Errorf("digest.at: %w", err)
		}
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required when the digest is enabled")
		}
		if len(c.Telegram.ChatIDs) == 0 {
			return fmt.Errorf("telegram.chat_ids is required when the digest is enabled")
		}
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Maintenance.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// StateDir is where maintenance state is kept.
func (c *Config) StateDir() string {
	if c.Maintenance.DataDir != "" {
		return c.Maintenance.DataDir
	}
	dir := filepath.Dir(c.Database.Path)
	if dir == "" || strings.HasPrefix(c.Database.Path, ":memory:") || strings.HasPrefix(c.Database.Path, "file::memory:") {
		return "."
	}
	return dir
}

func checkClock(s string) error {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return fmt.Errorf("invalid minute in %q", s)
	}
	return nil
}
