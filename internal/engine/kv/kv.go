// Package kv implements the KV-v2 secrets engine: versioned key-value
// secrets with soft-delete and hard-destroy, mounted at a prefix such as
// "secret/" through the mount router.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/engine"
)

const (
	defaultMaxVersions = 10

	dataPrefix     = "data/"
	metadataPrefix = "metadata/"
	undeletePrefix = "undelete/"
	destroyPrefix  = "destroy/"
)

// VersionInfo describes one version's lifecycle, matching §3's "per-version
// creation time, ... soft-delete markers".
type VersionInfo struct {
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Destroyed bool       `json:"destroyed"`
}

func (v VersionInfo) gone() bool {
	return v.DeletedAt != nil || v.Destroyed
}

// Metadata is the mutable side record at metadata/<path>.
type Metadata struct {
	CurrentVersion int           `json:"current_version"`
	MaxVersions    int           `json:"max_versions"`
	Versions       []VersionInfo `json:"versions"`
}

func (m *Metadata) find(version int) (*VersionInfo, bool) {
	for i := range m.Versions {
		if m.Versions[i].Version == version {
			return &m.Versions[i], true
		}
	}
	return nil, false
}

func (m *Metadata) activeCount() int {
	n := 0
	for _, v := range m.Versions {
		if !v.Destroyed {
			n++
		}
	}
	return n
}

// Engine implements engine.Engine for KV-v2.
type Engine struct {
	store engine.KeyValueStore
}

// New constructs a KV-v2 engine bound to store, the prefix-scoped,
// subkey-sealed storage view the mount router provides.
func New(store engine.KeyValueStore) *Engine {
	return &Engine{store: store}
}

func (e *Engine) Type() string { return "kv-v2" }

func (e *Engine) Init(ctx context.Context) error     { return nil }
func (e *Engine) Tick(ctx context.Context) error     { return nil }
func (e *Engine) Shutdown(ctx context.Context) error { return nil }

func dataKey(path string, version int) string {
	return dataPrefix + path + "/" + fmt.Sprint(version)
}

func metadataKey(path string) string {
	return metadataPrefix + path
}

func (e *Engine) getMetadata(ctx context.Context, path string) (Metadata, bool, error) {
	raw, ok, err := e.store.Get(ctx, metadataKey(path))
	if err != nil {
		return Metadata{}, false, err
	}
	if !ok {
		return Metadata{}, false, nil
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, false, fmt.Errorf("%w: corrupt kv-v2 metadata at %s", apperr.Corruption, path)
	}
	return m, true, nil
}

func (e *Engine) putMetadata(ctx context.Context, path string, m Metadata) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("kv: failed to marshal metadata for %s: %w", path, err)
	}
	return e.store.Put(ctx, metadataKey(path), raw)
}

// Write creates a new version at path, returning the version number.
func (e *Engine) Write(ctx context.Context, path string, data map[string]any) (int, error) {
	if err := ValidatePath(path); err != nil {
		return 0, err
	}

	m, ok, err := e.getMetadata(ctx, path)
	if err != nil {
		return 0, err
	}
	if !ok {
		m = Metadata{MaxVersions: defaultMaxVersions}
	}

	newVersion := m.CurrentVersion + 1
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("kv: failed to marshal secret data: %w", err)
	}
	if err := e.store.Put(ctx, dataKey(path, newVersion), payload); err != nil {
		return 0, err
	}

	m.Versions = append(m.Versions, VersionInfo{Version: newVersion, CreatedAt: time.Now()})
	m.CurrentVersion = newVersion

	if max := m.MaxVersions; max > 0 && m.activeCount() > max {
		if err := e.trimOldest(ctx, path, &m); err != nil {
			return 0, err
		}
	}

	if err := e.putMetadata(ctx, path, m); err != nil {
		return 0, err
	}
	return newVersion, nil
}

// trimOldest removes the oldest non-destroyed version's data record once
// max_versions is exceeded, per §4.7.
func (e *Engine) trimOldest(ctx context.Context, path string, m *Metadata) error {
	oldestIdx := -1
	for i, v := range m.Versions {
		if v.Destroyed {
			continue
		}
		if oldestIdx == -1 || v.Version < m.Versions[oldestIdx].Version {
			oldestIdx = i
		}
	}
	if oldestIdx == -1 {
		return nil
	}
	oldest := &m.Versions[oldestIdx]
	if err := e.store.Delete(ctx, dataKey(path, oldest.Version)); err != nil {
		return fmt.Errorf("kv: failed to prune version %d of %s: %w", oldest.Version, path, err)
	}
	oldest.Destroyed = true
	return nil
}

// Read returns the data at path for the given version, or the current
// version if version is 0.
func (e *Engine) Read(ctx context.Context, path string, version int) (map[string]any, int, error) {
	if err := ValidatePath(path); err != nil {
		return nil, 0, err
	}
	m, ok, err := e.getMetadata(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, apperr.New(apperr.KindNotFound, "no secret at %q", path)
	}
	if version == 0 {
		version = m.CurrentVersion
	}
	if version == 0 {
		return nil, 0, apperr.New(apperr.KindNotFound, "no secret at %q", path)
	}
	info, ok := m.find(version)
	if !ok {
		return nil, 0, apperr.New(apperr.KindNotFound, "no version %d at %q", version, path)
	}
	if info.gone() {
		return nil, version, apperr.New(apperr.KindGone, "version %d of %q is deleted or destroyed", version, path)
	}
	raw, ok, err := e.store.Get(ctx, dataKey(path, version))
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, version, apperr.New(apperr.KindGone, "version %d of %q has no data record", version, path)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, 0, fmt.Errorf("%w: corrupt kv-v2 data at %s v%d", apperr.Corruption, path, version)
	}
	return data, version, nil
}

// setDeleted sets (deleted true) or clears (deleted false) the deletion
// marker on every requested version's info entry (or the current version
// if versions is empty), skipping destroyed versions, and persists the
// metadata.
func (e *Engine) setDeleted(ctx context.Context, path string, versions []int, deleted bool) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	m, ok, err := e.getMetadata(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "no secret at %q", path)
	}
	if len(versions) == 0 {
		versions = []int{m.CurrentVersion}
	}
	now := time.Now()
	for _, v := range versions {
		info, ok := m.find(v)
		if !ok {
			continue
		}
		if info.Destroyed {
			continue
		}
		if deleted {
			info.DeletedAt = &now
		} else {
			info.DeletedAt = nil
		}
	}
	return e.putMetadata(ctx, path, m)
}

// SoftDelete marks versions (or the current version) deleted without
// removing data.
func (e *Engine) SoftDelete(ctx context.Context, path string, versions []int) error {
	return e.setDeleted(ctx, path, versions, true)
}

// Undelete clears the deletion marker on versions (or the current
// version), restoring access to data that was soft-deleted but not
// destroyed.
func (e *Engine) Undelete(ctx context.Context, path string, versions []int) error {
	return e.setDeleted(ctx, path, versions, false)
}

// Destroy permanently removes the data record for each version and marks
// its info entry destroyed.
func (e *Engine) Destroy(ctx context.Context, path string, versions []int) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	m, ok, err := e.getMetadata(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "no secret at %q", path)
	}
	if len(versions) == 0 {
		versions = []int{m.CurrentVersion}
	}
	for _, v := range versions {
		info, ok := m.find(v)
		if !ok {
			continue
		}
		if err := e.store.Delete(ctx, dataKey(path, v)); err != nil {
			return fmt.Errorf("kv: failed to destroy version %d of %s: %w", v, path, err)
		}
		info.Destroyed = true
	}
	return e.putMetadata(ctx, path, m)
}

// ConfigureMaxVersions updates a secret's max_versions bound.
func (e *Engine) ConfigureMaxVersions(ctx context.Context, path string, maxVersions int) error {
	m, ok, err := e.getMetadata(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		m = Metadata{MaxVersions: defaultMaxVersions}
	}
	m.MaxVersions = maxVersions
	return e.putMetadata(ctx, path, m)
}

// List returns the immediate child names under a path prefix among
// metadata records, sorted lexicographically. Soft-deleted and destroyed
// secrets remain listed, since Destroy keeps the metadata record, kept
// consistent with Read's gone/not-found split (resolves Open Question 3:
// list includes soft-deleted paths).
func (e *Engine) List(ctx context.Context, pathPrefix string) ([]string, error) {
	if pathPrefix != "" && pathPrefix != "/" {
		pathPrefix = strings.TrimSuffix(pathPrefix, "/") + "/"
	} else {
		pathPrefix = ""
	}
	suffixes, err := e.store.List(ctx, metadataPrefix+pathPrefix)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		child := s
		if i := strings.Index(child, "/"); i >= 0 {
			child = child[:i+1]
		}
		if !seen[child] {
			seen[child] = true
			out = append(out, child)
		}
	}
	sort.Strings(out)
	return out, nil
}
