// Package config handles environment-based configuration loading and the
// panels inventory file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	StateDir string

	// Panels
	PanelsFile string

	// Telegram
	BotToken     string
	ReportChatID int64

	// Monitor cadence
	CheckInterval   time.Duration
	ErrorBackoff    time.Duration
	GracePeriod     time.Duration
	PanelTimeout    time.Duration
	ServiceWorkers  int // max concurrent service checks per panel
	DailyReportSpec string

	// Notification dispatcher
	NotifyQueueSize     int
	NotifyMinInterval   time.Duration
	NotifyMaxConcurrent int

	// Ops HTTP listener
	OpsListenAddress string
	OpsPort          int
	MetricsEnabled   bool
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.StateDir = envStr("SENTINEL_STATE_DIR", "/var/lib/sentinel")

	// --- Panels ---
	cfg.PanelsFile = envStr("SENTINEL_PANELS_FILE", "/etc/sentinel/panels.yaml")

	// --- Telegram ---
	cfg.BotToken = os.Getenv("SENTINEL_BOT_TOKEN")
	cfg.ReportChatID = envInt64("SENTINEL_REPORT_CHAT_ID", 0, &errs)

	// --- Monitor cadence ---
	cfg.CheckInterval = envDuration("SENTINEL_CHECK_INTERVAL", 180*time.Second, &errs)
	cfg.ErrorBackoff = envDuration("SENTINEL_ERROR_BACKOFF", time.Minute, &errs)
	cfg.GracePeriod = envDuration("SENTINEL_GRACE_PERIOD", 24*time.Hour, &errs)
	cfg.PanelTimeout = envDuration("SENTINEL_PANEL_TIMEOUT", 30*time.Second, &errs)
	cfg.ServiceWorkers = envInt("SENTINEL_SERVICE_WORKERS", 200, &errs)
	cfg.DailyReportSpec = envStr("SENTINEL_DAILY_REPORT_SCHEDULE", "0 9 * * *")

	// --- Notification dispatcher ---
	cfg.NotifyQueueSize = envInt("SENTINEL_NOTIFY_QUEUE_SIZE", 4096, &errs)
	cfg.NotifyMinInterval = envDuration("SENTINEL_NOTIFY_MIN_INTERVAL", time.Second, &errs)
	cfg.NotifyMaxConcurrent = envInt("SENTINEL_NOTIFY_MAX_CONCURRENT", 5, &errs)

	// --- Ops listener ---
	cfg.OpsListenAddress = strings.TrimSpace(envStr("SENTINEL_OPS_LISTEN_ADDRESS", "127.0.0.1"))
	cfg.OpsPort = envInt("SENTINEL_OPS_PORT", 9460, &errs)
	cfg.MetricsEnabled = envBool("SENTINEL_METRICS_ENABLED", true, &errs)

	// --- Validation ---
	if cfg.BotToken == "" {
		errs = append(errs, "SENTINEL_BOT_TOKEN must be set")
	}
	if cfg.CheckInterval <= 0 {
		errs = append(errs, "SENTINEL_CHECK_INTERVAL must be positive")
	}
	if cfg.ErrorBackoff <= 0 {
		errs = append(errs, "SENTINEL_ERROR_BACKOFF must be positive")
	}
	if cfg.GracePeriod <= 0 {
		errs = append(errs, "SENTINEL_GRACE_PERIOD must be positive")
	}
	if cfg.PanelTimeout <= 0 {
		errs = append(errs, "SENTINEL_PANEL_TIMEOUT must be positive")
	}
	if cfg.NotifyMinInterval <= 0 {
		errs = append(errs, "SENTINEL_NOTIFY_MIN_INTERVAL must be positive")
	}
	if cfg.OpsListenAddress == "" {
		errs = append(errs, "SENTINEL_OPS_LISTEN_ADDRESS must not be empty")
	}
	validatePort("SENTINEL_OPS_PORT", cfg.OpsPort, &errs)
	validatePositive("SENTINEL_SERVICE_WORKERS", cfg.ServiceWorkers, &errs)
	validatePositive("SENTINEL_NOTIFY_QUEUE_SIZE", cfg.NotifyQueueSize, &errs)
	validatePositive("SENTINEL_NOTIFY_MAX_CONCURRENT", cfg.NotifyMaxConcurrent, &errs)
	if _, err := cron.ParseStandard(cfg.DailyReportSpec); err != nil {
		errs = append(errs, fmt.Sprintf("SENTINEL_DAILY_REPORT_SCHEDULE: invalid cron expression %q: %v", cfg.DailyReportSpec, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envInt64(key string, defaultVal int64, errs *[]string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
