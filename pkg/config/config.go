// Package config resolves the engine's environment-driven configuration
// (§6.2). Every setting has an env var and a matching cobra flag in
// cmd/synapsed; per §4.A, env always wins when both are given.
package config

import (
	"fmt"
	"os"
	"strconv"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
)

// Mode selects single-shard or sharded topology (§6.2 STORAGE_MODE).
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeSharded Mode = "sharded"
)

// Config holds the resolved engine configuration.
type Config struct {
	StoragePath          string
	StorageHost          string
	StoragePort          int
	VectorDimension      int
	Mode                 Mode
	NumShards            int
	SecureMode           bool
	ReconcileIntervalMS  int
	MemoryThreshold      int
	Autonomy             bool
}

// Defaults returns the table in §6.2 with nothing overridden.
func Defaults() Config {
	return Config{
		StoragePath:         "/data/storage.dat",
		StorageHost:         "0.0.0.0",
		StoragePort:         50051,
		VectorDimension:     768,
		Mode:                ModeSingle,
		NumShards:           16,
		SecureMode:          false,
		ReconcileIntervalMS: 10,
		MemoryThreshold:     50000,
		Autonomy:            true,
	}
}

// FromEnv resolves a Config starting from flagDefaults (typically the
// cobra command's parsed flag values) and overriding with any environment
// variable that is set, per §4.A's "env always wins" rule.
func FromEnv(flagDefaults Config) (Config, error) {
	c := flagDefaults

	c.StoragePath = stringEnv("STORAGE_PATH", c.StoragePath)
	c.StorageHost = stringEnv("STORAGE_HOST", c.StorageHost)

	port, err := intEnv("STORAGE_PORT", c.StoragePort)
	if err != nil {
		return Config{}, err
	}
	c.StoragePort = port

	dim, err := intEnv("VECTOR_DIMENSION", c.VectorDimension)
	if err != nil {
		return Config{}, err
	}
	c.VectorDimension = dim

	mode := stringEnv("STORAGE_MODE", string(c.Mode))
	if mode != string(ModeSingle) && mode != string(ModeSharded) {
		return Config{}, &synerrors.IncompatibleFormatError{Reason: fmt.Sprintf("STORAGE_MODE must be %q or %q, got %q", ModeSingle, ModeSharded, mode)}
	}
	c.Mode = Mode(mode)

	shards, err := intEnv("NUM_SHARDS", c.NumShards)
	if err != nil {
		return Config{}, err
	}
	c.NumShards = shards

	secure, err := boolEnv("SECURE_MODE", c.SecureMode)
	if err != nil {
		return Config{}, err
	}
	c.SecureMode = secure

	interval, err := intEnv("RECONCILE_INTERVAL_MS", c.ReconcileIntervalMS)
	if err != nil {
		return Config{}, err
	}
	c.ReconcileIntervalMS = interval

	threshold, err := intEnv("MEMORY_THRESHOLD", c.MemoryThreshold)
	if err != nil {
		return Config{}, err
	}
	c.MemoryThreshold = threshold

	autonomy, err := boolEnv("AUTONOMY", c.Autonomy)
	if err != nil {
		return Config{}, err
	}
	c.Autonomy = autonomy

	return c, c.validate()
}

func (c Config) validate() error {
	if c.VectorDimension <= 0 {
		return &synerrors.IncompatibleFormatError{Reason: "VECTOR_DIMENSION must be positive"}
	}
	if c.Mode == ModeSharded && c.NumShards < 1 {
		return &synerrors.IncompatibleFormatError{Reason: "NUM_SHARDS must be at least 1 in sharded mode"}
	}
	if c.StoragePort <= 0 || c.StoragePort > 65535 {
		return &synerrors.IncompatibleFormatError{Reason: "STORAGE_PORT out of range"}
	}
	return nil
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &synerrors.IncompatibleFormatError{Reason: fmt.Sprintf("%s must be an integer, got %q", key, v)}
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &synerrors.IncompatibleFormatError{Reason: fmt.Sprintf("%s must be a boolean, got %q", key, v)}
	}
	return b, nil
}
