package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsKeepSpecRatios(t *testing.T) {
	cfg := DefaultConfig()

	// The waits are tuned empirically; what matters structurally is
	// their relative magnitudes.
	if cfg.FirmwareProcessingWait < 3*cfg.RebootPropagationWait {
		t.Errorf("processing wait %s should be several propagation waits (%s)",
			cfg.FirmwareProcessingWait, cfg.RebootPropagationWait)
	}
	if cfg.RearRebootWait < 2*cfg.FirmwareProcessingWait {
		t.Errorf("rear reboot wait %s should dwarf the processing wait (%s)",
			cfg.RearRebootWait, cfg.FirmwareProcessingWait)
	}
	if cfg.DevicePort != 8000 {
		t.Errorf("device port = %d, want 8000", cfg.DevicePort)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chargerctl.yaml")
	yaml := "firmware_dir: /srv/firmware\nrear_reboot_wait: 90s\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FirmwareDir != "/srv/firmware" {
		t.Errorf("firmware dir = %q", cfg.FirmwareDir)
	}
	if cfg.RearRebootWait != 90*time.Second {
		t.Errorf("rear reboot wait = %s, want 90s", cfg.RearRebootWait)
	}
	// Untouched keys keep their defaults.
	if cfg.DevicePort != 8000 {
		t.Errorf("device port = %d, want default 8000", cfg.DevicePort)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for an explicitly named missing file")
	}
}
