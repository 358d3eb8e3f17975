package zvault

// Environment variable names, following the teacher's twelve-factor
// convention (ENCX_* -> ZVAULT_*).
const (
	// EnvStorageBackend selects the storage implementation: "memory",
	// "bolt", or "lsm".
	EnvStorageBackend = "ZVAULT_STORAGE_BACKEND"

	// EnvStoragePath is the directory or file path for persistent storage
	// backends (bolt, lsm). Unused for the in-memory backend.
	EnvStoragePath = "ZVAULT_STORAGE_PATH"

	// EnvBindAddr is the transport listen address.
	EnvBindAddr = "ZVAULT_BIND_ADDR"

	// EnvAuditFilePaths is a comma-separated list of file audit backend
	// destinations.
	EnvAuditFilePaths = "ZVAULT_AUDIT_FILE_PATHS"

	// EnvAuditSQLitePath enables the SQLite audit backend at the given
	// path when set.
	EnvAuditSQLitePath = "ZVAULT_AUDIT_SQLITE_PATH"

	// EnvAuditStorageBacked enables the storage-backed audit destination
	// when set to "true".
	EnvAuditStorageBacked = "ZVAULT_AUDIT_STORAGE_BACKED"

	// EnvLeaseScanInterval overrides the lease manager's background
	// expiry-scan interval, as a Go duration string (e.g. "30s").
	EnvLeaseScanInterval = "ZVAULT_LEASE_SCAN_INTERVAL"

	// EnvDisableMlock turns off the memory-lock/core-dump hardening that
	// is otherwise requested on hosted operating systems (§4.2); some
	// container runtimes cannot grant CAP_IPC_LOCK.
	EnvDisableMlock = "ZVAULT_DISABLE_MLOCK"

	// EnvBootstrapManifest points at a YAML bootstrap manifest describing
	// initial policies and mounts (SPEC_FULL.md §C.2).
	EnvBootstrapManifest = "ZVAULT_BOOTSTRAP_MANIFEST"
)

// Default values applied when the corresponding environment variable, or
// functional option, is not set.
const (
	DefaultStorageBackend     = "memory"
	DefaultStoragePath        = ".zvault/data"
	DefaultBindAddr           = "127.0.0.1:8200"
	DefaultLeaseScanInterval  = "30s"
	DefaultKVMaxVersions      = 10
	DefaultShamirShares       = 5
	DefaultShamirThreshold    = 3
)

// Canonical mount prefixes for the two built-in secrets engines (§6).
const (
	DefaultKVMount      = "secret/"
	DefaultTransitMount = "transit/"
)

// Engine type identifiers registered with the mount router's Factory map.
const (
	EngineTypeKV      = "kv"
	EngineTypeTransit = "transit"
)

// Shamir parameter bounds (§3, §4.2): 2 <= threshold <= shares <= 10.
const (
	MinShamirThreshold = 2
	MaxShamirShares    = 10
)
