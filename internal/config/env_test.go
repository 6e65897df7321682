package config

import (
	"strings"
	"testing"
	"time"
)

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// requiredEnvs returns the minimum env vars needed for LoadEnvConfig to succeed.
func requiredEnvs() map[string]string {
	return map[string]string{
		"SENTINEL_BOT_TOKEN": "123456:test-token",
	}
}

func TestLoadEnvConfig_Defaults(t *testing.T) {
	setEnvs(t, requiredEnvs())

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEqual(t, "StateDir", cfg.StateDir, "/var/lib/sentinel")
	assertEqual(t, "PanelsFile", cfg.PanelsFile, "/etc/sentinel/panels.yaml")
	assertEqual(t, "BotToken", cfg.BotToken, "123456:test-token")
	assertEqual(t, "ReportChatID", cfg.ReportChatID, int64(0))

	assertEqual(t, "CheckInterval", cfg.CheckInterval, 180*time.Second)
	assertEqual(t, "ErrorBackoff", cfg.ErrorBackoff, time.Minute)
	assertEqual(t, "GracePeriod", cfg.GracePeriod, 24*time.Hour)
	assertEqual(t, "PanelTimeout", cfg.PanelTimeout, 30*time.Second)
	assertEqual(t, "ServiceWorkers", cfg.ServiceWorkers, 200)
	assertEqual(t, "DailyReportSpec", cfg.DailyReportSpec, "0 9 * * *")

	assertEqual(t, "NotifyQueueSize", cfg.NotifyQueueSize, 4096)
	assertEqual(t, "NotifyMinInterval", cfg.NotifyMinInterval, time.Second)
	assertEqual(t, "NotifyMaxConcurrent", cfg.NotifyMaxConcurrent, 5)

	assertEqual(t, "OpsListenAddress", cfg.OpsListenAddress, "127.0.0.1")
	assertEqual(t, "OpsPort", cfg.OpsPort, 9460)
	assertEqual(t, "MetricsEnabled", cfg.MetricsEnabled, true)
}

func TestLoadEnvConfig_Overrides(t *testing.T) {
	envs := requiredEnvs()
	envs["SENTINEL_CHECK_INTERVAL"] = "90s"
	envs["SENTINEL_GRACE_PERIOD"] = "12h"
	envs["SENTINEL_SERVICE_WORKERS"] = "50"
	envs["SENTINEL_REPORT_CHAT_ID"] = "-1001234567890"
	envs["SENTINEL_METRICS_ENABLED"] = "false"
	setEnvs(t, envs)

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEqual(t, "CheckInterval", cfg.CheckInterval, 90*time.Second)
	assertEqual(t, "GracePeriod", cfg.GracePeriod, 12*time.Hour)
	assertEqual(t, "ServiceWorkers", cfg.ServiceWorkers, 50)
	assertEqual(t, "ReportChatID", cfg.ReportChatID, int64(-1001234567890))
	assertEqual(t, "MetricsEnabled", cfg.MetricsEnabled, false)
}

func TestLoadEnvConfig_MissingBotToken(t *testing.T) {
	t.Setenv("SENTINEL_BOT_TOKEN", "")
	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for missing SENTINEL_BOT_TOKEN")
	}
	assertContains(t, err.Error(), "SENTINEL_BOT_TOKEN")
}

func TestLoadEnvConfig_InvalidValues(t *testing.T) {
	envs := requiredEnvs()
	envs["SENTINEL_CHECK_INTERVAL"] = "not-a-duration"
	envs["SENTINEL_OPS_PORT"] = "70000"
	envs["SENTINEL_SERVICE_WORKERS"] = "-1"
	envs["SENTINEL_DAILY_REPORT_SCHEDULE"] = "nonsense"
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "SENTINEL_CHECK_INTERVAL")
	assertContains(t, err.Error(), "SENTINEL_OPS_PORT")
	assertContains(t, err.Error(), "SENTINEL_SERVICE_WORKERS")
	assertContains(t, err.Error(), "SENTINEL_DAILY_REPORT_SCHEDULE")
}

func TestParsePanels_Valid(t *testing.T) {
	data := []byte(`
panels:
  - id: 1
    name: frankfurt-1
    flavor: xui
    base_url: https://fra1.example.com:2053
    username: admin
    password: secret
  - id: 2
    name: tehran-edge
    flavor: marzban
    base_url: https://thr.example.com
    username: ops
    password: secret2
`)
	panels, err := ParsePanels(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(panels) != 2 {
		t.Fatalf("expected 2 panels, got %d", len(panels))
	}
	assertEqual(t, "panels[0].Flavor", panels[0].Flavor, PanelFlavorXUI)
	assertEqual(t, "panels[1].ID", panels[1].ID, int64(2))
}

func TestParsePanels_Invalid(t *testing.T) {
	data := []byte(`
panels:
  - id: 1
    name: a
    flavor: xui
    base_url: https://a.example.com
    username: admin
    password: secret
  - id: 1
    name: b
    flavor: weird
    base_url: ftp://b.example.com
    username: ""
    password: ""
`)
	_, err := ParsePanels(data)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "duplicate id 1")
	assertContains(t, err.Error(), "unknown flavor")
	assertContains(t, err.Error(), "base_url")
}

func assertEqual[T comparable](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", name, got, want)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
