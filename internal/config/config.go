package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"dutyroster/internal/models"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Rotation struct {
		RequireApproval  bool  `yaml:"require_approval"`
		ApproverID       int64 `yaml:"approver_id"`
		MinDaysForSwap   int   `yaml:"min_days_for_swap"`
		MinDaysForEdit   int   `yaml:"min_days_for_edit"`
		DefaultWeekCount int   `yaml:"default_week_count"`
	} `yaml:"rotation"`

	Reminder struct {
		Enabled              bool `yaml:"enabled"`
		CheckIntervalMinutes int  `yaml:"check_interval_minutes"`
		DaysBefore           int  `yaml:"days_before"`
	} `yaml:"reminder"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"sheets"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/dutyroster.db"
	}
	if cfg.Rotation.MinDaysForSwap <= 0 {
		cfg.Rotation.MinDaysForSwap = 7
	}
	if cfg.Rotation.MinDaysForEdit <= 0 {
		cfg.Rotation.MinDaysForEdit = 7
	}
	if cfg.Rotation.DefaultWeekCount <= 0 {
		cfg.Rotation.DefaultWeekCount = 12
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Workflow returns the explicit config value the workflow services take.
func (c *Config) Workflow() models.WorkflowConfig {
	return models.WorkflowConfig{
		RequireApproval: c.Rotation.RequireApproval,
		ApproverID:      c.Rotation.ApproverID,
		MinDaysForSwap:  c.Rotation.MinDaysForSwap,
		MinDaysForEdit:  c.Rotation.MinDaysForEdit,
	}
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) ReminderInterval() time.Duration {
	if c.Reminder.CheckIntervalMinutes <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(c.Reminder.CheckIntervalMinutes) * time.Minute
}

func (c *Config) RedisCacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
