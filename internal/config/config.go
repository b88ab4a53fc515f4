// Package config provides configuration management for Elevate.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DIRECTORY_MODE, AUTH_TENANT_ID, SERVER_PORT)
// 3. Default values
//
// Import Path: elevate.dev/elevate/internal/config
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Directory modes.
const (
	ModeLive = "live"
	ModeDemo = "demo"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Demo      DemoConfig      `mapstructure:"demo"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// DirectoryConfig selects and tunes the directory backend.
type DirectoryConfig struct {
	// Mode is "live" (privileged-access API) or "demo" (in-memory simulation).
	Mode           string        `mapstructure:"mode"`
	GraphBaseURL   string        `mapstructure:"graph_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig contains bearer token acquisition settings.
type AuthConfig struct {
	AuthorityHost string   `mapstructure:"authority_host"`
	TenantID      string   `mapstructure:"tenant_id"`
	ClientID      string   `mapstructure:"client_id"`
	Scopes        []string `mapstructure:"scopes"`

	// AccessToken and RefreshToken seed the silent token cache.
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`

	// Interactive enables the device-code fallback when silent acquisition fails.
	Interactive bool `mapstructure:"interactive"`

	// ExpirySkew is how long before token expiry the cache treats it as stale.
	ExpirySkew time.Duration `mapstructure:"expiry_skew"`
}

// RefreshConfig controls the background scheduler.
type RefreshConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Schedule       string        `mapstructure:"schedule"`
	ExpirySchedule string        `mapstructure:"expiry_schedule"`
	ExpiryWarning  time.Duration `mapstructure:"expiry_warning"`
}

// DemoConfig tunes the in-memory simulation.
type DemoConfig struct {
	FixturesFile      string        `mapstructure:"fixtures_file"`
	RefreshLatency    time.Duration `mapstructure:"refresh_latency"`
	ActivateLatency   time.Duration `mapstructure:"activate_latency"`
	DeactivateLatency time.Duration `mapstructure:"deactivate_latency"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize   int `mapstructure:"general_pool_size"`
	DirectoryPoolSize int `mapstructure:"directory_pool_size"`
	StreamPoolSize    int `mapstructure:"stream_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (DIRECTORY_MODE, AUTH_CLIENT_ID, etc.).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/elevate")

	// Maps nested config: auth.tenant_id → AUTH_TENANT_ID
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	switch c.Directory.Mode {
	case ModeLive, ModeDemo:
	default:
		return fmt.Errorf("directory.mode must be %q or %q, got %q", ModeLive, ModeDemo, c.Directory.Mode)
	}
	if c.Directory.Mode == ModeLive {
		if c.Directory.GraphBaseURL == "" {
			return fmt.Errorf("directory.graph_base_url must not be empty")
		}
		if c.Auth.ClientID == "" && c.Auth.AccessToken == "" {
			return fmt.Errorf("auth.client_id or auth.access_token is required in live mode")
		}
		if c.Auth.Interactive && c.Auth.ClientID == "" {
			return fmt.Errorf("auth.interactive requires auth.client_id")
		}
	}
	if c.Worker.DirectoryPoolSize < 2 {
		return fmt.Errorf("worker.directory_pool_size must be at least 2, got %d", c.Worker.DirectoryPoolSize)
	}
	if c.Worker.StreamPoolSize < 2 {
		return fmt.Errorf("worker.stream_pool_size must be at least 2, got %d", c.Worker.StreamPoolSize)
	}
	if c.Refresh.Enabled && strings.TrimSpace(c.Refresh.Schedule) == "" {
		return fmt.Errorf("refresh.schedule must not be empty when refresh is enabled")
	}
	return nil
}

// IsDemo reports whether the in-memory simulation is selected.
func (c *Config) IsDemo() bool {
	return c.Directory.Mode == ModeDemo
}

// normalize trims user input and warns about settings that silently degrade.
func (c *Config) normalize() {
	c.Directory.Mode = strings.ToLower(strings.TrimSpace(c.Directory.Mode))
	c.Directory.GraphBaseURL = strings.TrimRight(strings.TrimSpace(c.Directory.GraphBaseURL), "/")
	c.Auth.AuthorityHost = strings.TrimRight(strings.TrimSpace(c.Auth.AuthorityHost), "/")
	c.Auth.TenantID = strings.TrimSpace(c.Auth.TenantID)

	if c.Directory.Mode == ModeLive && c.Auth.AccessToken != "" && c.Auth.RefreshToken == "" && !c.Auth.Interactive {
		logBootstrapWarn(
			"auth.access_token without refresh_token or interactive fallback; directory calls fail once it expires",
		)
	}
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Directory
	v.SetDefault("directory.mode", ModeDemo)
	v.SetDefault("directory.graph_base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("directory.request_timeout", "30s")

	// Auth
	v.SetDefault("auth.authority_host", "https://login.microsoftonline.com")
	v.SetDefault("auth.tenant_id", "common")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.scopes", []string{
		"User.Read",
		"RoleManagement.ReadWrite.Directory",
		"RoleEligibilitySchedule.ReadWrite.Directory",
		"RoleAssignmentSchedule.ReadWrite.Directory",
		"offline_access",
	})
	v.SetDefault("auth.access_token", "")
	v.SetDefault("auth.refresh_token", "")
	v.SetDefault("auth.interactive", true)
	v.SetDefault("auth.expiry_skew", "2m")

	// Refresh scheduler
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.schedule", "@every 5m")
	v.SetDefault("refresh.expiry_schedule", "@every 1m")
	v.SetDefault("refresh.expiry_warning", "15m")

	// Demo simulation
	v.SetDefault("demo.fixtures_file", "")
	v.SetDefault("demo.refresh_latency", "500ms")
	v.SetDefault("demo.activate_latency", "1s")
	v.SetDefault("demo.deactivate_latency", "500ms")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 16)
	v.SetDefault("worker.directory_pool_size", 8)
	v.SetDefault("worker.stream_pool_size", 128)
}
