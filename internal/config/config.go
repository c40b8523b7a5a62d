package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	constants "vpsdash/config"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Probe kinds understood by the probe registry
const (
	ProbeCPU       = "cpu"
	ProbeMemory    = "memory"
	ProbeDisk      = "disk"
	ProbeService   = "service"
	ProbeLog       = "log"
	ProbeBedrock   = "bedrock"
	ProbeWireGuard = "wireguard"
)

// Store kinds for the backup target
const (
	StoreDir    = "dir"
	StoreRclone = "rclone"
)

// Config represents the agent configuration
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Probes    []ProbeConfig   `mapstructure:"probes" yaml:"probes"`
	Backup    BackupConfig    `mapstructure:"backup" yaml:"backup"`
	Alerts    AlertsConfig    `mapstructure:"alerts" yaml:"alerts"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	PIDFile   string          `mapstructure:"pid_file" yaml:"pid_file"`
}

type APIConfig struct {
	Listen            string `mapstructure:"listen" yaml:"listen"`
	CORSOrigin        string `mapstructure:"cors_origin" yaml:"cors_origin"`
	TriggerRatePerMin int    `mapstructure:"trigger_rate_per_min" yaml:"trigger_rate_per_min"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// HealthConfig durations are in seconds
type HealthConfig struct {
	Interval     int `mapstructure:"interval" yaml:"interval"`
	ProbeTimeout int `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	Grace        int `mapstructure:"grace" yaml:"grace"`
	HistorySize  int `mapstructure:"history_size" yaml:"history_size"`
}

// ProbeConfig describes one probe; which fields matter depends on Kind
type ProbeConfig struct {
	Name      string   `mapstructure:"name" yaml:"name"`
	Kind      string   `mapstructure:"kind" yaml:"kind"`
	Path      string   `mapstructure:"path" yaml:"path,omitempty"`
	Service   string   `mapstructure:"service" yaml:"service,omitempty"`
	Source    string   `mapstructure:"source" yaml:"source,omitempty"`
	Patterns  []string `mapstructure:"patterns" yaml:"patterns,omitempty"`
	TailLines int      `mapstructure:"tail_lines" yaml:"tail_lines,omitempty"`
	Host      string   `mapstructure:"host" yaml:"host,omitempty"`
	Port      int      `mapstructure:"port" yaml:"port,omitempty"`
	Iface     string   `mapstructure:"iface" yaml:"iface,omitempty"`
	Warn      float64  `mapstructure:"warn" yaml:"warn,omitempty"`
	Crit      float64  `mapstructure:"crit" yaml:"crit,omitempty"`
}

// BackupConfig durations are in seconds
type BackupConfig struct {
	Schedule    string      `mapstructure:"schedule" yaml:"schedule"`
	Sources     []string    `mapstructure:"sources" yaml:"sources"`
	Excludes    []string    `mapstructure:"excludes" yaml:"excludes,omitempty"`
	WorkDir     string      `mapstructure:"work_dir" yaml:"work_dir"`
	MaxAttempts int         `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   int         `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    int         `mapstructure:"max_delay" yaml:"max_delay"`
	Keep        int         `mapstructure:"keep" yaml:"keep"`
	KeyPrefix   string      `mapstructure:"key_prefix" yaml:"key_prefix"`
	Journal     string      `mapstructure:"journal" yaml:"journal"`
	Summary     string      `mapstructure:"summary" yaml:"summary"`
	HistorySize int         `mapstructure:"history_size" yaml:"history_size"`
	HookPre     string      `mapstructure:"hook_pre" yaml:"hook_pre,omitempty"`
	HookPost    string      `mapstructure:"hook_post" yaml:"hook_post,omitempty"`
	HookTimeout int         `mapstructure:"hook_timeout" yaml:"hook_timeout"`
	Store       StoreConfig `mapstructure:"store" yaml:"store"`
}

type StoreConfig struct {
	Kind            string `mapstructure:"kind" yaml:"kind"`
	Path            string `mapstructure:"path" yaml:"path,omitempty"`
	Remote          string `mapstructure:"remote" yaml:"remote,omitempty"`
	RcloneBin       string `mapstructure:"rclone_bin" yaml:"rclone_bin,omitempty"`
	BreakerFailures int    `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerTimeout  int    `mapstructure:"breaker_timeout" yaml:"breaker_timeout"`
}

// AlertsConfig intervals are in minutes
type AlertsConfig struct {
	WebhookURL     string `mapstructure:"webhook_url" yaml:"webhook_url,omitempty"`
	WebhookSecret  string `mapstructure:"webhook_secret" yaml:"webhook_secret,omitempty"`
	TelegramToken  string `mapstructure:"telegram_token" yaml:"telegram_token,omitempty"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id" yaml:"telegram_chat_id,omitempty"`
	Renotify       int    `mapstructure:"renotify" yaml:"renotify"`
	ResolveAfter   int    `mapstructure:"resolve_after" yaml:"resolve_after"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint,omitempty"`
	OTLPToken    string `mapstructure:"otlp_token" yaml:"otlp_token,omitempty"`
	Interval     int    `mapstructure:"interval" yaml:"interval,omitempty"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (h HealthConfig) IntervalDuration() time.Duration { return seconds(h.Interval) }
func (h HealthConfig) TimeoutDuration() time.Duration  { return seconds(h.ProbeTimeout) }
func (h HealthConfig) GraceDuration() time.Duration    { return seconds(h.Grace) }

func (b BackupConfig) BaseDelayDuration() time.Duration   { return seconds(b.BaseDelay) }
func (b BackupConfig) MaxDelayDuration() time.Duration    { return seconds(b.MaxDelay) }
func (b BackupConfig) HookTimeoutDuration() time.Duration { return seconds(b.HookTimeout) }

func (a AlertsConfig) RenotifyDuration() time.Duration {
	return time.Duration(a.Renotify) * time.Minute
}

func (a AlertsConfig) ResolveAfterDuration() time.Duration {
	return time.Duration(a.ResolveAfter) * time.Minute
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen", constants.DEFAULT_API_LISTEN)
	v.SetDefault("api.cors_origin", constants.DEFAULT_CORS_ORIGIN)
	v.SetDefault("api.trigger_rate_per_min", constants.DEFAULT_TRIGGER_RATE_PER_MIN)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("health.interval", constants.DEFAULT_HEALTH_INTERVAL)
	v.SetDefault("health.probe_timeout", constants.DEFAULT_PROBE_TIMEOUT)
	v.SetDefault("health.grace", constants.DEFAULT_CYCLE_GRACE)
	v.SetDefault("health.history_size", constants.DEFAULT_SNAPSHOT_HISTORY)

	v.SetDefault("backup.schedule", constants.DEFAULT_BACKUP_SCHEDULE)
	v.SetDefault("backup.work_dir", constants.BACKUP_WORK_DIR)
	v.SetDefault("backup.max_attempts", constants.DEFAULT_MAX_ATTEMPTS)
	v.SetDefault("backup.base_delay", constants.DEFAULT_BASE_DELAY)
	v.SetDefault("backup.max_delay", constants.DEFAULT_MAX_DELAY)
	v.SetDefault("backup.keep", constants.DEFAULT_KEEP)
	v.SetDefault("backup.key_prefix", constants.DEFAULT_KEY_PREFIX)
	v.SetDefault("backup.journal", constants.BACKUP_JOURNAL)
	v.SetDefault("backup.summary", constants.BACKUP_SUMMARY)
	v.SetDefault("backup.history_size", constants.DEFAULT_RUN_HISTORY)
	v.SetDefault("backup.hook_timeout", constants.DEFAULT_HOOK_TIMEOUT)
	v.SetDefault("backup.store.kind", constants.DEFAULT_STORE_KIND)
	v.SetDefault("backup.store.path", constants.BACKUP_TARGET_DIR)
	v.SetDefault("backup.store.rclone_bin", constants.DEFAULT_RCLONE_BIN)
	v.SetDefault("backup.store.breaker_failures", constants.DEFAULT_BREAKER_FAILURES)
	v.SetDefault("backup.store.breaker_timeout", constants.DEFAULT_BREAKER_TIMEOUT)

	v.SetDefault("alerts.renotify", constants.DEFAULT_ALERT_RENOTIFY_INTERVAL)
	v.SetDefault("alerts.resolve_after", constants.DEFAULT_ALERT_RESOLUTION_TIMEOUT)

	v.SetDefault("telemetry.interval", constants.DEFAULT_OTLP_INTERVAL)

	v.SetDefault("pid_file", constants.PID_FILE)
}

// DefaultProbes is the probe set used when the config file names none
func DefaultProbes() []ProbeConfig {
	return []ProbeConfig{
		{Name: "cpu", Kind: ProbeCPU},
		{Name: "memory", Kind: ProbeMemory},
		{Name: "disk", Kind: ProbeDisk, Path: "/"},
	}
}

// LoadConfig loads configuration from file and environment.
// An empty path searches $HOME/.vpsdash, /etc/vpsdash and the working directory.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME" + constants.CONFIG_DIR_NAME)
		v.AddConfigPath(constants.SYSTEM_CONFIG_DIR)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VPSDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Probes) == 0 {
		cfg.Probes = DefaultProbes()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration LoadConfig produces with no file present
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.Probes = DefaultProbes()
	return &cfg
}

// Validate checks cross-field constraints
func (cfg *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(cfg.Probes))
	for i, p := range cfg.Probes {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("probes[%d]: name is required", i))
		case p.Name == "backup":
			errs = append(errs, fmt.Errorf("probes[%d]: name %q is reserved", i, p.Name))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("probes[%d]: duplicate probe name %q", i, p.Name))
		}
		seen[p.Name] = true

		switch p.Kind {
		case ProbeCPU, ProbeMemory, ProbeBedrock, ProbeWireGuard:
		case ProbeDisk:
			if p.Path == "" {
				errs = append(errs, fmt.Errorf("probe %q: disk probe needs a path", p.Name))
			}
		case ProbeLog:
			if p.Path == "" {
				errs = append(errs, fmt.Errorf("probe %q: log probe needs a path", p.Name))
			}
		case ProbeService:
			if p.Service == "" {
				errs = append(errs, fmt.Errorf("probe %q: service probe needs a service", p.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("probe %q: unknown kind %q", p.Name, p.Kind))
		}

		if p.Warn > 0 && p.Crit > 0 && p.Warn > p.Crit {
			errs = append(errs, fmt.Errorf("probe %q: warn %.1f exceeds crit %.1f", p.Name, p.Warn, p.Crit))
		}
	}

	if cfg.Health.Interval < 1 {
		errs = append(errs, errors.New("health.interval must be at least 1 second"))
	}
	if cfg.Health.ProbeTimeout < 1 {
		errs = append(errs, errors.New("health.probe_timeout must be at least 1 second"))
	}
	if cfg.Health.HistorySize < 1 {
		errs = append(errs, errors.New("health.history_size must be at least 1"))
	}
	if cfg.Backup.HistorySize < 1 {
		errs = append(errs, errors.New("backup.history_size must be at least 1"))
	}
	if cfg.Backup.MaxAttempts < 1 {
		errs = append(errs, errors.New("backup.max_attempts must be at least 1"))
	}
	if cfg.Backup.Keep < 1 {
		errs = append(errs, errors.New("backup.keep must be at least 1"))
	}

	if (cfg.Alerts.TelegramToken == "") != (cfg.Alerts.TelegramChatID == 0) {
		errs = append(errs, errors.New("alerts.telegram_token and alerts.telegram_chat_id must be set together"))
	}

	switch cfg.Backup.Store.Kind {
	case StoreDir:
		if cfg.Backup.Store.Path == "" {
			errs = append(errs, errors.New("backup.store.path is required for the dir store"))
		}
	case StoreRclone:
		if cfg.Backup.Store.Remote == "" {
			errs = append(errs, errors.New("backup.store.remote is required for the rclone store"))
		}
	default:
		errs = append(errs, fmt.Errorf("backup.store.kind: unknown store %q", cfg.Backup.Store.Kind))
	}

	return errors.Join(errs...)
}

// DefaultPath returns the per-user config file location
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(constants.SYSTEM_CONFIG_DIR, "config.yaml")
	}
	return filepath.Join(home+constants.CONFIG_DIR_NAME, "config.yaml")
}

// SaveConfig writes the configuration as YAML
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
