package coordinator

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TANKFLEET_DEVICE_PSK", "psk")
	t.Setenv("TANKFLEET_TOKEN_SECRET", "secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected addr %s", cfg.ListenAddr)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("expected 3 max retries, got %d", cfg.MaxRetries)
	}
	if cfg.Timezone != "Asia/Kolkata" {
		t.Fatalf("unexpected timezone %s", cfg.Timezone)
	}

	iv, err := cfg.ParseIntervals()
	if err != nil {
		t.Fatalf("intervals: %v", err)
	}
	if iv.OfflineThreshold != 2*time.Minute {
		t.Fatalf("unexpected offline threshold %s", iv.OfflineThreshold)
	}
	if iv.Liveness != time.Minute {
		t.Fatalf("unexpected liveness interval %s", iv.Liveness)
	}
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("TANKFLEET_DEVICE_PSK", "")
	t.Setenv("TANKFLEET_TOKEN_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without device psk")
	}

	t.Setenv("TANKFLEET_DEVICE_PSK", "psk")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without token secret")
	}
}

func TestLoadConfigYAMLFile(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("listen_addr: \":9090\"\noffline_threshold: \"5m\"\nmax_retries: 5\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TANKFLEET_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("yaml addr not applied, got %s", cfg.ListenAddr)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("yaml max_retries not applied, got %d", cfg.MaxRetries)
	}
	iv, err := cfg.ParseIntervals()
	if err != nil {
		t.Fatalf("intervals: %v", err)
	}
	if iv.OfflineThreshold != 5*time.Minute {
		t.Fatalf("yaml threshold not applied, got %s", iv.OfflineThreshold)
	}
}

func TestParseIntervalsRejectsBadValues(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg.OfflineThreshold = "soon"
	if _, err := cfg.ParseIntervals(); err == nil {
		t.Fatalf("expected error for malformed duration")
	}

	cfg.OfflineThreshold = "-1m"
	if _, err := cfg.ParseIntervals(); err == nil {
		t.Fatalf("expected error for non-positive duration")
	}
}

func TestLocation(t *testing.T) {
	cfg := Config{Timezone: "UTC"}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC, got %v err=%v", loc, err)
	}

	cfg.Timezone = "Not/AZone"
	if _, err := cfg.Location(); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}
