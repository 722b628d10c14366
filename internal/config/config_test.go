package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Cron.Enabled || cfg.Cron.TickIntervalMs != 1000 {
		t.Errorf("cron defaults wrong: %+v", cfg.Cron)
	}
	if cfg.Delivery.DefaultChannel != "webchat" {
		t.Errorf("delivery default wrong: %+v", cfg.Delivery)
	}
	if !strings.HasSuffix(cfg.Cron.StorePath, filepath.Join("cron", "jobs.json")) {
		t.Errorf("store path not derived from data dir: %s", cfg.Cron.StorePath)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	content := `{
  // cron tuning
  cron: { tickIntervalMs: 250, storePath: "/var/lib/mozi/jobs.json" },
  delivery: { defaultChannel: "dingtalk" },
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cron.TickIntervalMs != 250 {
		t.Errorf("tickIntervalMs not applied: %d", cfg.Cron.TickIntervalMs)
	}
	if cfg.Cron.StorePath != "/var/lib/mozi/jobs.json" {
		t.Errorf("storePath not applied: %s", cfg.Cron.StorePath)
	}
	if cfg.Delivery.DefaultChannel != "dingtalk" {
		t.Errorf("defaultChannel not applied: %s", cfg.Delivery.DefaultChannel)
	}
	// untouched sections keep defaults
	if cfg.Delivery.SendRatePerMinute != 60 {
		t.Errorf("unset field lost its default: %d", cfg.Delivery.SendRatePerMinute)
	}
}

func TestLoadRejectsBadSyntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := ExpandHome("~/.mozi/cron")
	want := filepath.Join(home, ".mozi", "cron")
	if got != want {
		t.Errorf("ExpandHome = %s, want %s", got, want)
	}
	if ExpandHome("/abs/path") != "/abs/path" {
		t.Error("absolute paths must pass through")
	}
}
