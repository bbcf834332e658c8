package config

import "testing"

func TestFromEnvOverridesFlagDefaults(t *testing.T) {
	t.Setenv("STORAGE_PORT", "9999")
	t.Setenv("STORAGE_MODE", "sharded")
	t.Setenv("NUM_SHARDS", "4")

	cfg, err := FromEnv(Defaults())
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.StoragePort != 9999 {
		t.Errorf("expected env to override port, got %d", cfg.StoragePort)
	}
	if cfg.Mode != ModeSharded {
		t.Errorf("expected sharded mode, got %s", cfg.Mode)
	}
	if cfg.NumShards != 4 {
		t.Errorf("expected 4 shards, got %d", cfg.NumShards)
	}
	if cfg.StorageHost != "0.0.0.0" {
		t.Errorf("expected default host preserved, got %s", cfg.StorageHost)
	}
}

func TestFromEnvRejectsInvalidMode(t *testing.T) {
	t.Setenv("STORAGE_MODE", "bogus")
	if _, err := FromEnv(Defaults()); err == nil {
		t.Fatal("expected error for invalid STORAGE_MODE")
	}
}

func TestFromEnvRejectsNonIntegerPort(t *testing.T) {
	t.Setenv("STORAGE_PORT", "not-a-number")
	if _, err := FromEnv(Defaults()); err == nil {
		t.Fatal("expected error for non-integer STORAGE_PORT")
	}
}
