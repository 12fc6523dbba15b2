package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	vigilerrors "vigil/pkg/errors"
)

const EnvPrefix = "VIGIL"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Hub      HubConfig      `mapstructure:"hub"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Host                string          `mapstructure:"host"`
	Port                int             `mapstructure:"port"`
	AllowPrivateTargets bool            `mapstructure:"allow_private_targets"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type ScanConfig struct {
	ModulesFile    string `mapstructure:"modules_file"`
	OutputDir      string `mapstructure:"output_dir"`
	WorkDir        string `mapstructure:"work_dir"`
	DefaultTimeout int    `mapstructure:"default_timeout"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	ParallelLimit  int    `mapstructure:"parallel_limit"`
	ExecutionMode  string `mapstructure:"execution_mode"`
}

type HubConfig struct {
	Keepalive     time.Duration `mapstructure:"keepalive"`
	MailboxSize   int           `mapstructure:"mailbox_size"`
	CompletedRing int           `mapstructure:"completed_ring"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

type NotifyConfig struct {
	DiscordChannelID string `mapstructure:"discord_channel_id"`
	MinSeverity      string `mapstructure:"min_severity"`
	PerFinding       bool   `mapstructure:"per_finding"`
}

var defaults = map[string]interface{}{
	"server.host":                  "0.0.0.0",
	"server.port":                  8080,
	"server.allow_private_targets": false,
	"server.rate_limit.rps":        5.0,
	"server.rate_limit.burst":      10,

	"database.host":     "localhost",
	"database.port":     5432,
	"database.user":     "vigil",
	"database.password": "vigil",
	"database.name":     "vigil",
	"database.sslmode":  "disable",

	"scan.modules_file":    "config/modules.yaml",
	"scan.output_dir":      "/tmp/vigil/output",
	"scan.work_dir":        "",
	"scan.default_timeout": 300,
	"scan.max_concurrent":  2,
	"scan.parallel_limit":  0,
	"scan.execution_mode":  "",

	"hub.keepalive":      "30s",
	"hub.mailbox_size":   1024,
	"hub.completed_ring": 256,

	"log.level": "info",

	"tracing.endpoint":     "",
	"tracing.insecure":     true,
	"tracing.service_name": "vigil",

	"notify.discord_channel_id": "",
	"notify.min_severity":       "high",
	"notify.per_finding":        false,
}

// Load reads configuration from path (when non-empty) or from vigil.yaml
// in the usual search paths, then applies VIGIL_* environment overrides.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vigil")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/vigil")
		v.AddConfigPath("$HOME/.vigil")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return vigilerrors.NewConfigError("server.port", c.Server.Port, "must be between 1 and 65535")
	}
	if c.Scan.DefaultTimeout < 1 || c.Scan.DefaultTimeout > 3600 {
		return vigilerrors.NewConfigError("scan.default_timeout", c.Scan.DefaultTimeout, "must be between 1 and 3600")
	}
	if c.Scan.MaxConcurrent < 1 {
		return vigilerrors.NewConfigError("scan.max_concurrent", c.Scan.MaxConcurrent, "must be at least 1")
	}
	switch c.Scan.ExecutionMode {
	case "", "sequential", "parallel":
	default:
		return vigilerrors.NewConfigError("scan.execution_mode", c.Scan.ExecutionMode, "must be sequential or parallel")
	}
	if c.Hub.Keepalive <= 0 {
		return vigilerrors.NewConfigError("hub.keepalive", c.Hub.Keepalive, "must be positive")
	}
	return nil
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
