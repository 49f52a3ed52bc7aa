package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. SYSMETRICS_HOST_ROOT
const EnvPrefix = "SYSMETRICS"

const (
	minCPUInterval       = 10 * time.Millisecond
	maxCPUInterval       = 10 * time.Second
	minScheduleInterval  = 30 * time.Second
	maxSubjectPrefixLen  = 50
	defaultSchedInterval = 5 * time.Minute
)

var (
	hostIDPattern       = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	subjectTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Config is the complete service configuration
type Config struct {
	Host     HostConfig     `mapstructure:"host"`
	Sampling SamplingConfig `mapstructure:"sampling"`
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// HostConfig controls where pseudo-filesystem sources are read from
type HostConfig struct {
	// Root is the host filesystem mount prefix. Empty disables host lookup
	Root string `mapstructure:"root"`
}

// SamplingConfig controls snapshot collection
type SamplingConfig struct {
	CPUInterval    time.Duration `mapstructure:"cpu_interval"`
	SamplerTimeout time.Duration `mapstructure:"sampler_timeout"` // 0 = cpu_interval + margin
	Parallel       bool          `mapstructure:"parallel"`
}

// DatabaseConfig holds the MySQL connection settings
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// HTTPConfig holds the API server settings
type HTTPConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StoreRateLimit  float64       `mapstructure:"store_rate_limit"` // requests/sec, 0 = unlimited
	StoreRateBurst  int           `mapstructure:"store_rate_burst"`
}

// ScheduleConfig controls the background collect-and-store job
type ScheduleConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// NATSConfig holds NATS connection settings for snapshot publishing
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URLs          []string      `mapstructure:"urls"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	HostID        string        `mapstructure:"host_id"`
	JetStream     bool          `mapstructure:"jetstream"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
	// CommandTimeout bounds a snapshot requested over NATS
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	Auth           AuthConfig    `mapstructure:"auth"`
	TLS            TLSConfig     `mapstructure:"tls"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type      string `mapstructure:"type"` // "none", "token", "userpass", "creds"
	Token     string `mapstructure:"token"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	CredsFile string `mapstructure:"creds_file"`
}

// TLSConfig holds TLS settings
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads configuration from path, then applies SYSMETRICS_* environment
// overrides. A missing file is not an error; defaults and environment apply
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.NATS.HostID == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.NATS.HostID = sanitizeHostID(hostname)
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host.root", "/host")

	v.SetDefault("sampling.cpu_interval", 200*time.Millisecond)
	v.SetDefault("sampling.sampler_timeout", 0)
	v.SetDefault("sampling.parallel", true)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("http.listen", ":5000")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.store_rate_limit", 1.0)
	v.SetDefault("http.store_rate_burst", 5)

	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.interval", defaultSchedInterval)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("nats.subject_prefix", "sysmetrics")
	v.SetDefault("nats.host_id", "")
	v.SetDefault("nats.jetstream", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.drain_timeout", 5*time.Second)
	v.SetDefault("nats.command_timeout", 5*time.Second)
	v.SetDefault("nats.auth.type", "none")
	v.SetDefault("nats.auth.token", "")
	v.SetDefault("nats.auth.username", "")
	v.SetDefault("nats.auth.password", "")
	v.SetDefault("nats.auth.creds_file", "")
	v.SetDefault("nats.tls.enabled", false)
	v.SetDefault("nats.tls.cert_file", "")
	v.SetDefault("nats.tls.key_file", "")
	v.SetDefault("nats.tls.ca_file", "")
	v.SetDefault("nats.tls.insecure_skip_verify", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)

	applyPlatformDefaults(v)
}

func validate(cfg *Config) error {
	// Sampling
	if cfg.Sampling.CPUInterval < minCPUInterval {
		return fmt.Errorf("sampling.cpu_interval must be at least %s", minCPUInterval)
	}
	if cfg.Sampling.CPUInterval > maxCPUInterval {
		return fmt.Errorf("sampling.cpu_interval must not exceed %s", maxCPUInterval)
	}
	if cfg.Sampling.SamplerTimeout < 0 {
		return fmt.Errorf("sampling.sampler_timeout must not be negative")
	}
	if cfg.Sampling.SamplerTimeout > 0 && cfg.Sampling.SamplerTimeout <= cfg.Sampling.CPUInterval {
		return fmt.Errorf("sampling.sampler_timeout (%s) must be greater than sampling.cpu_interval (%s)",
			cfg.Sampling.SamplerTimeout, cfg.Sampling.CPUInterval)
	}

	// Database
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.Database.MaxOpenConns < 0 || cfg.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database connection limits must not be negative")
	}

	// HTTP
	if cfg.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}
	if cfg.HTTP.StoreRateLimit < 0 {
		return fmt.Errorf("http.store_rate_limit must not be negative")
	}
	if cfg.HTTP.StoreRateLimit > 0 && cfg.HTTP.StoreRateBurst < 1 {
		return fmt.Errorf("http.store_rate_burst must be at least 1 when store_rate_limit is set")
	}

	// Schedule
	if cfg.Schedule.Enabled && cfg.Schedule.Interval < minScheduleInterval {
		return fmt.Errorf("schedule.interval must be at least 30 seconds")
	}

	// NATS
	if cfg.NATS.Enabled {
		if err := validateNATS(&cfg.NATS); err != nil {
			return err
		}
	}

	// Logging
	if _, err := zapcore.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}
	if cfg.Logging.File == "" {
		return fmt.Errorf("logging.file is required")
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("logging.max_size_mb must be positive")
	}
	if cfg.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging.max_backups must not be negative")
	}

	return nil
}

func validateNATS(cfg *NATSConfig) error {
	if len(cfg.URLs) == 0 {
		return fmt.Errorf("nats.urls is required when nats is enabled")
	}

	if cfg.CommandTimeout <= 0 {
		return fmt.Errorf("nats.command_timeout must be positive")
	}

	if cfg.HostID == "" {
		return fmt.Errorf("nats.host_id is required")
	}
	if !hostIDPattern.MatchString(cfg.HostID) {
		return fmt.Errorf("nats.host_id must contain only alphanumeric characters, dashes, and underscores")
	}

	if cfg.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix is required")
	}
	if len(cfg.SubjectPrefix) > maxSubjectPrefixLen {
		return fmt.Errorf("nats.subject_prefix must not exceed 50 characters")
	}
	if err := validateSubjectPrefix(cfg.SubjectPrefix); err != nil {
		return fmt.Errorf("nats.subject_prefix: %w", err)
	}

	switch cfg.Auth.Type {
	case "none":
	case "token":
		if cfg.Auth.Token == "" {
			return fmt.Errorf("nats.auth.token is required for token auth")
		}
	case "userpass":
		if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
			return fmt.Errorf("nats.auth username and password are required for userpass auth")
		}
	case "creds":
		if cfg.Auth.CredsFile == "" {
			return fmt.Errorf("nats.auth.creds_file is required for creds auth")
		}
	default:
		return fmt.Errorf("invalid auth type: %s", cfg.Auth.Type)
	}

	if cfg.TLS.Enabled {
		if err := validateTLS(&cfg.TLS); err != nil {
			return err
		}
	}

	return nil
}

func validateTLS(cfg *TLSConfig) error {
	if cfg.CertFile != "" && cfg.KeyFile == "" {
		return fmt.Errorf("nats.tls.key_file is required when cert_file is set")
	}
	if cfg.KeyFile != "" && cfg.CertFile == "" {
		return fmt.Errorf("nats.tls.cert_file is required when key_file is set")
	}
	if cfg.CertFile != "" {
		if _, err := os.Stat(cfg.CertFile); err != nil {
			return fmt.Errorf("TLS certificate file not found: %s", cfg.CertFile)
		}
	}
	if cfg.KeyFile != "" {
		if _, err := os.Stat(cfg.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %s", cfg.KeyFile)
		}
	}
	if cfg.CAFile != "" {
		if _, err := os.Stat(cfg.CAFile); err != nil {
			return fmt.Errorf("TLS CA file not found: %s", cfg.CAFile)
		}
	}
	return nil
}

// validateSubjectPrefix checks a dot-separated NATS subject prefix
func validateSubjectPrefix(prefix string) error {
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") {
		return fmt.Errorf("cannot start or end with a dot")
	}
	if strings.Contains(prefix, "..") {
		return fmt.Errorf("consecutive dots not allowed")
	}
	for _, token := range strings.Split(prefix, ".") {
		if !subjectTokenPattern.MatchString(token) {
			return fmt.Errorf("token %q contains invalid characters", token)
		}
	}
	return nil
}

// sanitizeHostID maps a hostname onto the characters allowed in a subject token
func sanitizeHostID(hostname string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, hostname)
}
