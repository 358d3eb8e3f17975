package zvault

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hengadev/errsx"

	"github.com/zvault/zvault/internal/monitoring"
)

// MetricsCollector re-exports the monitoring package's collector interface
// so integrators can supply one without reaching into internal/monitoring
// (§4's Prometheus wiring, SPEC_FULL.md §B).
type MetricsCollector = monitoring.MetricsCollector

// Config holds everything Server needs to assemble the storage, barrier,
// mount, lease, audit, and pipeline layers (§6).
//
// Config carries only data; NewServer is what turns it into a running
// system. Zero-value fields are filled in by Validate with the defaults
// declared in constants.go.
type Config struct {
	// StorageBackend selects the byte-addressed store the barrier wraps:
	// "memory", "bolt", or "lsm". Validate fills in DefaultStorageBackend
	// when it is empty.
	StorageBackend string

	// StoragePath is the directory or file path used by persistent
	// storage backends. Unused by "memory".
	StoragePath string

	// BindAddr is the transport listen address for cmd/zvault-server.
	BindAddr string

	// AuditFilePaths configures zero or more file audit backends, one
	// per path. At least one audit backend (file, SQLite, or storage)
	// must be configured; Write fails closed otherwise (§4.10).
	AuditFilePaths []string

	// AuditSQLitePath, if non-empty, adds a SQLite audit backend at this
	// path.
	AuditSQLitePath string

	// AuditStorageBacked, if true, adds a storage-backed audit backend
	// writing under the barrier at the default prefix.
	AuditStorageBacked bool

	// LeaseScanInterval is how often the lease manager's background
	// scanner sweeps for expired leases (§4.9).
	LeaseScanInterval time.Duration

	// ShamirShares and ShamirThreshold are the default parameters passed
	// to SealController.Initialize when a caller does not supply its own
	// (§3, §4.2): 2 <= ShamirThreshold <= ShamirShares <= 10.
	ShamirShares    int
	ShamirThreshold int

	// DisableMlock turns off the memory-lock/core-dump hardening that
	// internal/security otherwise applies at startup (§4.2); some
	// container runtimes cannot grant CAP_IPC_LOCK.
	DisableMlock bool

	// BootstrapManifestPath, if set, points at a YAML manifest of initial
	// policies and mounts applied once, on the first request Server.Handle
	// routes after the vault is unsealed (SPEC_FULL.md §C.2).
	BootstrapManifestPath string

	// AutoUnsealProvider, if set, wraps the Shamir shares produced by
	// Initialize under an external KMS key instead of handing them to an
	// operator, and unwraps+submits them automatically at startup
	// (SPEC_FULL.md §C.1). Manual unseal (§4.4) remains the default.
	AutoUnsealProvider AutoUnsealProvider

	// MetricsCollector receives counters and timings for seal
	// transitions, pipeline requests, and lease expiry. Optional; a
	// no-op collector is used when nil.
	MetricsCollector MetricsCollector

	// Logger receives structured log records for every layer. Optional;
	// slog.Default() is used when nil.
	Logger *slog.Logger
}

// Validate checks required fields and fills in defaults for everything
// left zero, following the teacher's Validate-applies-defaults
// convention.
func (c *Config) Validate() error {
	errs := errsx.Map{}

	if c.StorageBackend == "" {
		c.StorageBackend = DefaultStorageBackend
	}
	switch c.StorageBackend {
	case "memory", "bolt", "lsm":
	default:
		errs.Set("storageBackend", fmt.Errorf("unknown storage backend %q: want memory, bolt, or lsm", c.StorageBackend))
	}

	if c.StorageBackend != "memory" && c.StoragePath == "" {
		c.StoragePath = DefaultStoragePath
	}

	if c.BindAddr == "" {
		c.BindAddr = DefaultBindAddr
	}

	if len(c.AuditFilePaths) == 0 && c.AuditSQLitePath == "" && !c.AuditStorageBacked {
		errs.Set("audit", ErrMissingAuditBackend)
	}

	if c.LeaseScanInterval == 0 {
		d, err := time.ParseDuration(DefaultLeaseScanInterval)
		if err != nil {
			errs.Set("leaseScanInterval", fmt.Errorf("parsing default lease scan interval: %w", err))
		}
		c.LeaseScanInterval = d
	}

	if c.ShamirShares == 0 {
		c.ShamirShares = DefaultShamirShares
	}
	if c.ShamirThreshold == 0 {
		c.ShamirThreshold = DefaultShamirThreshold
	}
	if c.ShamirThreshold < MinShamirThreshold || c.ShamirShares > MaxShamirShares || c.ShamirThreshold > c.ShamirShares {
		errs.Set("shamir", ErrInvalidShamirParams)
	}

	return errs.AsError()
}
