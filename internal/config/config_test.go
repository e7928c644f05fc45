package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("expected default max retries 5, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelay() != 2*time.Second {
		t.Errorf("expected default base delay 2s, got %v", cfg.Retry.BaseDelay())
	}
	if cfg.Retry.MaxDelay() != 60*time.Second {
		t.Errorf("expected default max delay 60s, got %v", cfg.Retry.MaxDelay())
	}
	if cfg.Reconcile.Mode != ModeAddOnly {
		t.Errorf("expected default mode add-only, got %s", cfg.Reconcile.Mode)
	}
	if cfg.Reconcile.DryRun {
		t.Error("expected dry run off by default")
	}
	if cfg.CSV.Delimiter != "," {
		t.Errorf("expected default delimiter comma, got %q", cfg.CSV.Delimiter)
	}
	if cfg.Graph.AuthMethod != "device-code" {
		t.Errorf("expected default auth method device-code, got %s", cfg.Graph.AuthMethod)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
graph:
  tenantId: 11111111-2222-3333-4444-555555555555
  clientId: aaaa
  groupId: bbbb
retry:
  maxRetries: 3
  baseDelaySec: 1
  maxDelaySec: 90
reconcile:
  mode: sync-exact
  dryRun: true
csv:
  delimiter: ";"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.MaxDelaySec != 90 {
		t.Errorf("unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Reconcile.Mode != ModeSyncExact || !cfg.Reconcile.DryRun {
		t.Errorf("unexpected reconcile config: %+v", cfg.Reconcile)
	}
	if cfg.CSV.Delimiter != ";" {
		t.Errorf("unexpected delimiter: %q", cfg.CSV.Delimiter)
	}
}

func TestSyncExactRequiresConfirmation(t *testing.T) {
	path := writeConfig(t, `
reconcile:
  mode: sync-exact
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error: sync-exact without dryRun needs confirmDestructive")
	}

	path = writeConfig(t, `
reconcile:
  mode: sync-exact
  confirmDestructive: true
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("unexpected error with confirmation: %v", err)
	}

	path = writeConfig(t, `
reconcile:
  mode: sync-exact
  dryRun: true
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("unexpected error in dry run: %v", err)
	}
}

func TestUnknownModeRejected(t *testing.T) {
	path := writeConfig(t, `
reconcile:
  mode: destroy-everything
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GRATBOX_TENANT_ID", "tenant-from-env")
	t.Setenv("GRATBOX_MAX_RETRIES", "7")
	t.Setenv("GRATBOX_DRYRUN", "true")
	t.Setenv("GRATBOX_MODE", "sync-exact")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Graph.TenantID != "tenant-from-env" {
		t.Errorf("env tenant override not applied: %s", cfg.Graph.TenantID)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Errorf("env max retries override not applied: %d", cfg.Retry.MaxRetries)
	}
	if !cfg.Reconcile.DryRun {
		t.Error("env dry run override not applied")
	}
	if cfg.Reconcile.Mode != ModeSyncExact {
		t.Errorf("env mode override not applied: %s", cfg.Reconcile.Mode)
	}
}
