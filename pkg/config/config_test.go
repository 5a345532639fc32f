package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Fatalf("listen=%s want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Settlement.CompensateAttempts != 3 {
		t.Fatalf("attempts=%d want 3", cfg.Settlement.CompensateAttempts)
	}
	if cfg.Settlement.StepTimeout != 5*time.Second {
		t.Fatalf("step timeout=%s want 5s", cfg.Settlement.StepTimeout)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settle.yaml")
	data := `
server:
  listen_addr: ":9090"
settlement:
  step_timeout: 2s
  compensate_attempts: 5
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Fatalf("listen=%s want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Settlement.StepTimeout != 2*time.Second {
		t.Fatalf("step timeout=%s want 2s", cfg.Settlement.StepTimeout)
	}
	if cfg.Settlement.CompensateAttempts != 5 {
		t.Fatalf("attempts=%d want 5", cfg.Settlement.CompensateAttempts)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("level=%s want debug", cfg.Log.Level)
	}
	// 未覆盖的字段保持默认
	if cfg.Store.LedgerDBPath != "data/ledger.db" {
		t.Fatalf("db path=%s want default", cfg.Store.LedgerDBPath)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	t.Setenv("SETTLE_LISTEN_ADDR", ":7070")
	t.Setenv("SETTLE_STEP_TIMEOUT", "3s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Fatalf("listen=%s want :7070 from env", cfg.Server.ListenAddr)
	}
	if cfg.Settlement.StepTimeout != 3*time.Second {
		t.Fatalf("step timeout=%s want 3s from env", cfg.Settlement.StepTimeout)
	}
}

func TestLoad_RejectsBadSettlementConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settle.yaml")
	data := `
settlement:
  compensate_attempts: 0
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("compensate_attempts=0 must be rejected")
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("explicit missing config path must fail")
	}
}
