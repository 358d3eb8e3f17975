package zvault

import (
	"fmt"
	"strings"
	"time"
)

// Option represents a configuration option for NewServer, following the
// teacher's functional-options convention (internal/config.Option).
type Option func(*Config) error

// WithStorageBackend selects the storage implementation.
func WithStorageBackend(backend string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(backend) == "" {
			return fmt.Errorf("storage backend cannot be empty")
		}
		c.StorageBackend = backend
		return nil
	}
}

// WithStoragePath sets the directory or file path used by persistent
// storage backends.
func WithStoragePath(path string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("storage path cannot be empty")
		}
		c.StoragePath = path
		return nil
	}
}

// WithBindAddr sets the transport listen address.
func WithBindAddr(addr string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("bind address cannot be empty")
		}
		c.BindAddr = addr
		return nil
	}
}

// WithAuditFileBackend adds a file audit backend at the given path.
func WithAuditFileBackend(path string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("audit file path cannot be empty")
		}
		c.AuditFilePaths = append(c.AuditFilePaths, path)
		return nil
	}
}

// WithAuditSQLiteBackend adds a SQLite audit backend at the given path.
func WithAuditSQLiteBackend(path string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("audit sqlite path cannot be empty")
		}
		c.AuditSQLitePath = path
		return nil
	}
}

// WithAuditStorageBackend enables the storage-backed audit destination.
func WithAuditStorageBackend() Option {
	return func(c *Config) error {
		c.AuditStorageBacked = true
		return nil
	}
}

// WithLeaseScanInterval overrides the lease manager's background
// expiry-scan interval.
func WithLeaseScanInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("lease scan interval must be positive, got %s", d)
		}
		c.LeaseScanInterval = d
		return nil
	}
}

// WithShamirParams overrides the default Shamir share/threshold pair
// used by Initialize when the caller does not pass its own.
func WithShamirParams(shares, threshold int) Option {
	return func(c *Config) error {
		if threshold < MinShamirThreshold || shares > MaxShamirShares || threshold > shares {
			return ErrInvalidShamirParams
		}
		c.ShamirShares = shares
		c.ShamirThreshold = threshold
		return nil
	}
}

// WithDisableMlock turns off memory-lock/core-dump hardening.
func WithDisableMlock() Option {
	return func(c *Config) error {
		c.DisableMlock = true
		return nil
	}
}

// WithBootstrapManifest points Server at a YAML manifest of initial
// policies and mounts, applied once, on the first request Server.Handle
// routes after the vault is unsealed.
func WithBootstrapManifest(path string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("bootstrap manifest path cannot be empty")
		}
		c.BootstrapManifestPath = path
		return nil
	}
}

// WithAutoUnsealProvider configures automatic unseal via an external KMS
// instead of manual Shamir share submission.
func WithAutoUnsealProvider(provider AutoUnsealProvider) Option {
	return func(c *Config) error {
		if provider == nil {
			return fmt.Errorf("auto-unseal provider cannot be nil")
		}
		c.AutoUnsealProvider = provider
		return nil
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(c *Config) error {
		c.MetricsCollector = collector
		return nil
	}
}

// DefaultConfig returns a Config with every field set to its documented
// default, equivalent to what Validate would produce from a zero Config.
func DefaultConfig() *Config {
	leaseScan, _ := time.ParseDuration(DefaultLeaseScanInterval)
	return &Config{
		StorageBackend:    DefaultStorageBackend,
		StoragePath:       DefaultStoragePath,
		BindAddr:          DefaultBindAddr,
		LeaseScanInterval: leaseScan,
		ShamirShares:      DefaultShamirShares,
		ShamirThreshold:   DefaultShamirThreshold,
	}
}

// ApplyOptions applies all configuration options to a config in order,
// stopping at the first error.
func ApplyOptions(config *Config, options []Option) error {
	for i, opt := range options {
		if err := opt(config); err != nil {
			return fmt.Errorf("option %d failed: %w", i, err)
		}
	}
	return nil
}
