package constants

// Identity
const (
	SERVICE_NAME        = "vpsdash"
	SERVICE_DESCRIPTION = "vpsdash - host health sampling and backup agent"
	HEADER_USER_AGENT   = "vpsdash/1.0"
)

// Status API
const (
	DEFAULT_API_LISTEN           = "127.0.0.1:8088"
	DEFAULT_CORS_ORIGIN          = "*"
	DEFAULT_TRIGGER_RATE_PER_MIN = 6
	DEFAULT_HISTORY_LIMIT        = 20
	DEFAULT_RUNS_LIMIT           = 20
)

// Health sampling
const (
	DEFAULT_HEALTH_INTERVAL  = 60 // seconds
	DEFAULT_PROBE_TIMEOUT    = 2  // seconds
	DEFAULT_CYCLE_GRACE      = 1  // seconds
	DEFAULT_SNAPSHOT_HISTORY = 60 // snapshots (one hour at the default interval)
)

// Probe thresholds
const (
	DEFAULT_CPU_WARN    = 85.0
	DEFAULT_CPU_CRIT    = 95.0
	DEFAULT_MEMORY_WARN = 85.0
	DEFAULT_MEMORY_CRIT = 95.0
	DEFAULT_DISK_WARN   = 80.0
	DEFAULT_DISK_CRIT   = 90.0

	DEFAULT_LOG_WARN       = 1.0  // matching lines
	DEFAULT_LOG_CRIT       = 10.0 // matching lines
	DEFAULT_LOG_TAIL_LINES = 50

	DEFAULT_HANDSHAKE_WARN = 180.0 // seconds
	DEFAULT_HANDSHAKE_CRIT = 600.0 // seconds

	DEFAULT_BEDROCK_HOST = "127.0.0.1"
	DEFAULT_BEDROCK_PORT = 19132
	DEFAULT_WG_IFACE     = "wg0"
)

// Backup pipeline
const (
	DEFAULT_BACKUP_SCHEDULE  = "0 3 * * *"
	DEFAULT_MAX_ATTEMPTS     = 3
	DEFAULT_BASE_DELAY       = 5  // seconds
	DEFAULT_MAX_DELAY        = 60 // seconds
	DEFAULT_KEEP             = 7
	DEFAULT_KEY_PREFIX       = "vps-backup"
	DEFAULT_RUN_HISTORY      = 50
	DEFAULT_HOOK_TIMEOUT     = 300 // seconds
	DEFAULT_BREAKER_FAILURES = 3
	DEFAULT_BREAKER_TIMEOUT  = 30 // seconds
	DEFAULT_STORE_KIND       = "dir"
	DEFAULT_RCLONE_BIN       = "rclone"
)

// Alerts
const (
	DEFAULT_ALERT_RENOTIFY_INTERVAL  = 120 // minutes (2 hours)
	DEFAULT_ALERT_RESOLUTION_TIMEOUT = 5   // minutes
)

// Alert channels
const (
	TELEGRAM_API_URL = "https://api.telegram.org/bot%s/sendMessage"
)

// Telemetry
const (
	OTLP_PATH             = "/v1/metrics"
	DEFAULT_OTLP_INTERVAL = 30 // seconds
)

// File paths
const (
	CONFIG_DIR_NAME   = "/.vpsdash"
	SYSTEM_CONFIG_DIR = "/etc/vpsdash"
	PID_FILE          = "/tmp/vpsdash.pid"
	BACKUP_WORK_DIR   = "/var/lib/vpsdash/work"
	BACKUP_TARGET_DIR = "/var/backups/vpsdash"
	BACKUP_JOURNAL    = "/var/log/vps-backup-history.jsonl"
	BACKUP_SUMMARY    = "/var/log/vps-backup.json"
)
