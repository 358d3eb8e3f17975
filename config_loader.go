package zvault

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadConfigFromEnvironment loads configuration from environment
// variables, following 12-factor methodology (§6).
//
// .env is loaded first, if present, matching the teacher's
// godotenv.Load() convention; a missing .env is not an error.
//
// Optional environment variables (defaults applied if unset):
//   - ZVAULT_STORAGE_BACKEND (default: memory)
//   - ZVAULT_STORAGE_PATH (default: .zvault/data)
//   - ZVAULT_BIND_ADDR (default: 127.0.0.1:8200)
//   - ZVAULT_AUDIT_FILE_PATHS (comma-separated)
//   - ZVAULT_AUDIT_SQLITE_PATH
//   - ZVAULT_AUDIT_STORAGE_BACKED ("true" to enable)
//   - ZVAULT_LEASE_SCAN_INTERVAL (default: 30s)
//   - ZVAULT_DISABLE_MLOCK ("true" to disable)
//   - ZVAULT_BOOTSTRAP_MANIFEST
func LoadConfigFromEnvironment() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StorageBackend:        getEnvOrDefault(EnvStorageBackend, DefaultStorageBackend),
		StoragePath:           getEnvOrDefault(EnvStoragePath, DefaultStoragePath),
		BindAddr:              getEnvOrDefault(EnvBindAddr, DefaultBindAddr),
		AuditSQLitePath:       os.Getenv(EnvAuditSQLitePath),
		AuditStorageBacked:    envBool(EnvAuditStorageBacked),
		DisableMlock:          envBool(EnvDisableMlock),
		BootstrapManifestPath: os.Getenv(EnvBootstrapManifest),
		ShamirShares:          DefaultShamirShares,
		ShamirThreshold:       DefaultShamirThreshold,
	}

	if raw := os.Getenv(EnvAuditFilePaths); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.AuditFilePaths = append(cfg.AuditFilePaths, p)
			}
		}
	}

	scanInterval := getEnvOrDefault(EnvLeaseScanInterval, DefaultLeaseScanInterval)
	d, err := time.ParseDuration(scanInterval)
	if err != nil {
		return Config{}, fmt.Errorf("%s: invalid duration %q: %w", EnvLeaseScanInterval, scanInterval, err)
	}
	cfg.LeaseScanInterval = d

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// getEnvOrDefault returns the value of an environment variable, or a
// default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// envBool reports whether the named environment variable is set to a
// truthy value (parsed with strconv.ParseBool; unset or unparsable is
// false).
func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false
	}
	return v
}
