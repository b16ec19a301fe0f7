package config

import (
	"FaceSyncServer/logger"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort      int    `yaml:"HTTPPort" validate:"min=1,max=65535"`
	RPCPort       int    `yaml:"RPCPort" validate:"min=1,max=65535"`
	MetricsPort   int    `yaml:"MetricsPort" validate:"min=1,max=65535"`
	MaxSessions   int    `yaml:"maxSessions" validate:"min=1,max=1024"`
	FrameRate     int    `yaml:"frameRate" validate:"min=1,max=240"`
	IdleTimeoutMs int    `yaml:"idleTimeoutMs" validate:"min=100"`
	Seed          uint64 `yaml:"seed"`
	DefaultFilter string `yaml:"defaultFilter" validate:"oneof=normal cyberpunk rainbow matrix neon hologram"`
	UseRegServer  bool   `yaml:"UseRegServer"`
	RegServerPort int    `yaml:"RegServerPort" validate:"required_if=UseRegServer true,max=65535"`
	RegServerHost string `yaml:"RegServerHost" validate:"required_if=UseRegServer true"`
	Development   bool   `yaml:"development"`

	Log logger.FileConfig `yaml:"log"`
}

func Default() Config {
	return Config{
		HTTPPort:      8080,
		RPCPort:       50051,
		MetricsPort:   50053,
		MaxSessions:   8,
		FrameRate:     60,
		IdleTimeoutMs: 30000,
		DefaultFilter: "normal",
	}
}

func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

// Load 读取 yaml，缺省字段用默认值补齐，再用 .env / 环境变量覆盖端口。
// 配置文件不存在时直接使用默认值。
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	fillDefaults(&cfg)

	// .env 可选
	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = def.HTTPPort
	}
	if cfg.RPCPort == 0 {
		cfg.RPCPort = def.RPCPort
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = def.MetricsPort
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = def.FrameRate
	}
	if cfg.IdleTimeoutMs <= 0 {
		cfg.IdleTimeoutMs = def.IdleTimeoutMs
	}
	if cfg.DefaultFilter == "" {
		cfg.DefaultFilter = def.DefaultFilter
	}
}

var envPorts = []struct {
	key string
	dst func(*Config) *int
}{
	{"FACESYNC_HTTP_PORT", func(c *Config) *int { return &c.HTTPPort }},
	{"FACESYNC_RPC_PORT", func(c *Config) *int { return &c.RPCPort }},
	{"FACESYNC_METRICS_PORT", func(c *Config) *int { return &c.MetricsPort }},
	{"FACESYNC_MAX_SESSIONS", func(c *Config) *int { return &c.MaxSessions }},
}

func applyEnv(cfg *Config) error {
	for _, e := range envPorts {
		v, ok := os.LookupEnv(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", e.key, err)
		}
		*e.dst(cfg) = n
	}
	if v := os.Getenv("FACESYNC_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("env FACESYNC_SEED: %w", err)
		}
		cfg.Seed = seed
	}
	return nil
}

var validate = validator.New()

func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
