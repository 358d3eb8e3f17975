package zvault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hengadev/errsx"
)

// Validator performs the granular field-by-field checks Config.Validate
// aggregates. Split out so cmd/zvault-server and tests can check one
// aspect (e.g. storage reachability) without running the whole
// validation pass.
type Validator struct{}

// NewValidator returns a configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig runs every granular check and aggregates failures the
// same way Config.Validate does, via errsx.Map.
func (v *Validator) ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	errs := errsx.Map{}

	if err := v.validateStorageBackend(config.StorageBackend, config.StoragePath); err != nil {
		errs.Set("storage", err)
	}
	if err := v.validateAuditBackends(config.AuditFilePaths, config.AuditSQLitePath, config.AuditStorageBacked); err != nil {
		errs.Set("audit", err)
	}
	if err := v.validateShamirParams(config.ShamirShares, config.ShamirThreshold); err != nil {
		errs.Set("shamir", err)
	}
	if config.BootstrapManifestPath != "" {
		if err := v.validateBootstrapManifest(config.BootstrapManifestPath); err != nil {
			errs.Set("bootstrapManifest", err)
		}
	}

	return errs.AsError()
}

func (v *Validator) validateStorageBackend(backend, path string) error {
	switch backend {
	case "memory":
		return nil
	case "bolt", "lsm":
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("storage path is required for backend %q", backend)
		}
		return checkDirectoryWritable(filepath.Dir(path))
	default:
		return fmt.Errorf("unknown storage backend %q: want memory, bolt, or lsm", backend)
	}
}

func (v *Validator) validateAuditBackends(filePaths []string, sqlitePath string, storageBacked bool) error {
	if len(filePaths) == 0 && sqlitePath == "" && !storageBacked {
		return ErrMissingAuditBackend
	}
	for _, p := range filePaths {
		if err := checkDirectoryWritable(filepath.Dir(p)); err != nil {
			return fmt.Errorf("audit file path %q: %w", p, err)
		}
	}
	if sqlitePath != "" {
		if err := checkDirectoryWritable(filepath.Dir(sqlitePath)); err != nil {
			return fmt.Errorf("audit sqlite path %q: %w", sqlitePath, err)
		}
	}
	return nil
}

func (v *Validator) validateShamirParams(shares, threshold int) error {
	if threshold < MinShamirThreshold {
		return fmt.Errorf("shamir threshold too low: minimum %d, got %d", MinShamirThreshold, threshold)
	}
	if shares > MaxShamirShares {
		return fmt.Errorf("shamir shares too high: maximum %d, got %d", MaxShamirShares, shares)
	}
	if threshold > shares {
		return fmt.Errorf("shamir threshold (%d) cannot exceed shares (%d)", threshold, shares)
	}
	return nil
}

func (v *Validator) validateBootstrapManifest(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("bootstrap manifest: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("bootstrap manifest %q is a directory, not a file", path)
	}
	return nil
}

// checkDirectoryWritable creates dir if missing and confirms the process
// can write to it, following the teacher's config validation convention.
func checkDirectoryWritable(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dir, err)
	}
	testFile := filepath.Join(dir, ".zvault_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory %q is not writable: %w", dir, err)
	}
	f.Close()
	_ = os.Remove(testFile)
	return nil
}
