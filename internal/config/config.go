package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/window"
)

type Server struct {
	Addr string `yaml:"addr"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Slack struct {
	Enabled bool   `yaml:"enabled"`
	Webhook string `yaml:"webhook"`
}

type Tracing struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

type Analysis struct {
	Window             time.Duration `yaml:"window"`      // ex: 1m, 5m
	Sensitivity        float64       `yaml:"sensitivity"` // expected anomalous fraction
	Model              string        `yaml:"model"`       // iforest|zscore
	Trees              int           `yaml:"trees"`
	Seed               int64         `yaml:"seed"`
	SyslogYear         int           `yaml:"syslogYear"` // 0 = current year
	TemplateDepth      int           `yaml:"templateDepth"`
	TemplateSimilarity float64       `yaml:"templateSimilarity"`
	MaxWindows         int           `yaml:"maxWindows"` // grid size limit per run
}

type Cache struct {
	Backend       string        `yaml:"backend"` // bolt|redis|none
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	TTL           time.Duration `yaml:"ttl"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

type Config struct {
	Server    Server   `yaml:"server"`
	Storage   Storage  `yaml:"storage"`
	AuthToken string   `yaml:"authToken"`
	RulesFile string   `yaml:"rulesFile"`
	Slack     Slack    `yaml:"slack"`
	Tracing   Tracing  `yaml:"tracing"`
	Analysis  Analysis `yaml:"analysis"`
	Cache     Cache    `yaml:"cache"`
	Log       Log      `yaml:"log"`
}

// Load reads path if it exists, then applies env overrides and defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, c.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LAD_AUTH_TOKEN"); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv("LAD_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
		if c.Cache.Backend == "" {
			c.Cache.Backend = "redis"
		}
	}
	if v := os.Getenv("LAD_SLACK_WEBHOOK"); v != "" {
		c.Slack.Webhook = v
		c.Slack.Enabled = true
	}
	if v, err := strconv.ParseFloat(os.Getenv("LAD_SENSITIVITY"), 64); err == nil {
		c.Analysis.Sensitivity = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/log-anomaly.db"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "go-log-anomaly-scan"
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = "localhost:4317"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1.0
	}
	if c.Analysis.Window == 0 {
		c.Analysis.Window = time.Minute
	}
	if c.Analysis.Sensitivity == 0 {
		c.Analysis.Sensitivity = 0.01
	}
	if c.Analysis.MaxWindows == 0 {
		c.Analysis.MaxWindows = window.DefaultMaxWindows
	}
	if c.Analysis.Model == "" {
		c.Analysis.Model = "iforest"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "bolt"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if err := window.CheckDuration(c.Analysis.Window); err != nil {
		return fmt.Errorf("analysis.window: %w", err)
	}
	if c.Analysis.MaxWindows < 0 {
		return fmt.Errorf("analysis.maxWindows must not be negative, got %d", c.Analysis.MaxWindows)
	}
	if !(c.Analysis.Sensitivity > 0 && c.Analysis.Sensitivity < 1) {
		return fmt.Errorf("analysis.sensitivity must be in (0, 1), got %v", c.Analysis.Sensitivity)
	}
	switch c.Cache.Backend {
	case "bolt", "redis", "none":
	default:
		return fmt.Errorf("cache.backend must be bolt, redis or none, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return errors.New("cache.redisAddr is required for the redis backend")
	}
	return nil
}
