// Package transit implements the transit secrets engine: named symmetric
// and asymmetric keys with version history, offering encrypt/decrypt/
// rewrap/rotate/sign/verify as a service so callers never see key
// material directly.
package transit

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/crypto"
	"github.com/zvault/zvault/internal/engine"
)

// KeyType identifies the shape of a named key's material.
type KeyType string

const (
	// KeyTypeAEAD is a 256-bit AES-GCM symmetric key.
	KeyTypeAEAD KeyType = "aes256-gcm96"
	// KeyTypeEd25519 is an Ed25519 signing keypair.
	KeyTypeEd25519 KeyType = "ed25519"
)

const keyPrefix = "keys/"

// metadata is the side record at keys/<name> carrying version bounds.
type metadata struct {
	Name                 string  `json:"name"`
	Type                 KeyType `json:"type"`
	LatestVersion        int     `json:"latest_version"`
	MinDecryptionVersion int     `json:"min_decryption_version"`
	MinEncryptionVersion int     `json:"min_encryption_version"`
}

// version is one key version's material, wrapped under the transit
// subkey by the engine's store before it ever reaches disk.
type version struct {
	Version   int       `json:"version"`
	Material  []byte    `json:"material"` // AES-256 key, or Ed25519 seed||pub (64 bytes)
	CreatedAt time.Time `json:"created_at"`
	Destroyed bool      `json:"destroyed"`
}

// Engine implements engine.Engine for the transit secrets engine.
type Engine struct {
	store engine.KeyValueStore
}

// New constructs a transit engine bound to store.
func New(store engine.KeyValueStore) *Engine {
	return &Engine{store: store}
}

func (e *Engine) Type() string { return "transit" }

func (e *Engine) Init(ctx context.Context) error     { return nil }
func (e *Engine) Tick(ctx context.Context) error     { return nil }
func (e *Engine) Shutdown(ctx context.Context) error { return nil }

func metaKey(name string) string      { return keyPrefix + name }
func versionKey(name string, v int) string { return keyPrefix + name + "/" + strconv.Itoa(v) }

func (e *Engine) getMetadata(ctx context.Context, name string) (metadata, bool, error) {
	raw, ok, err := e.store.Get(ctx, metaKey(name))
	if err != nil {
		return metadata{}, false, err
	}
	if !ok {
		return metadata{}, false, nil
	}
	var m metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return metadata{}, false, fmt.Errorf("%w: corrupt transit key metadata %q", apperr.Corruption, name)
	}
	return m, true, nil
}

func (e *Engine) putMetadata(ctx context.Context, m metadata) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("transit: failed to marshal metadata for %s: %w", m.Name, err)
	}
	return e.store.Put(ctx, metaKey(m.Name), raw)
}

func (e *Engine) getVersion(ctx context.Context, name string, v int) (version, error) {
	raw, ok, err := e.store.Get(ctx, versionKey(name, v))
	if err != nil {
		return version{}, err
	}
	if !ok {
		return version{}, apperr.New(apperr.KindNotFound, "key %q has no version %d", name, v)
	}
	var ver version
	if err := json.Unmarshal(raw, &ver); err != nil {
		return version{}, fmt.Errorf("%w: corrupt transit key version %q v%d", apperr.Corruption, name, v)
	}
	if ver.Destroyed {
		return version{}, apperr.New(apperr.KindGone, "key %q version %d has been destroyed", name, v)
	}
	return ver, nil
}

func (e *Engine) putVersion(ctx context.Context, name string, ver version) error {
	raw, err := json.Marshal(ver)
	if err != nil {
		return fmt.Errorf("transit: failed to marshal version %d of %s: %w", ver.Version, name, err)
	}
	return e.store.Put(ctx, versionKey(name, ver.Version), raw)
}

func generateMaterial(t KeyType) ([]byte, error) {
	switch t {
	case KeyTypeAEAD:
		return crypto.RandomKey()
	case KeyTypeEd25519:
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, fmt.Errorf("transit: failed to generate ed25519 key: %w", err)
		}
		out := make([]byte, 0, ed25519.SeedSize+ed25519.PublicKeySize)
		out = append(out, priv.Seed()...)
		out = append(out, pub...)
		return out, nil
	default:
		return nil, apperr.New(apperr.KindInvalidArgument, "unsupported key type %q", t)
	}
}

func splitEd25519(material []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if len(material) != ed25519.SeedSize+ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("%w: malformed ed25519 key material", apperr.Corruption)
	}
	seed := material[:ed25519.SeedSize]
	pub := ed25519.PublicKey(material[ed25519.SeedSize:])
	return ed25519.NewKeyFromSeed(seed), pub, nil
}

// CreateKey generates a fresh named key of the given type at version 1.
func (e *Engine) CreateKey(ctx context.Context, name string, keyType KeyType) error {
	if _, ok, err := e.getMetadata(ctx, name); err != nil {
		return err
	} else if ok {
		return apperr.New(apperr.KindConflict, "key %q already exists", name)
	}

	material, err := generateMaterial(keyType)
	if err != nil {
		return err
	}
	defer crypto.ZeroizeBestEffort(material)

	if err := e.putVersion(ctx, name, version{Version: 1, Material: material, CreatedAt: time.Now()}); err != nil {
		return err
	}
	return e.putMetadata(ctx, metadata{
		Name:                 name,
		Type:                 keyType,
		LatestVersion:        1,
		MinDecryptionVersion: 1,
		MinEncryptionVersion: 1,
	})
}

// Rotate atomically appends a new version and advances latest_version. Old
// versions remain usable for decrypt until min_decryption_version excludes
// them.
func (e *Engine) Rotate(ctx context.Context, name string) (int, error) {
	m, ok, err := e.getMetadata(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.New(apperr.KindNotFound, "key %q not found", name)
	}
	material, err := generateMaterial(m.Type)
	if err != nil {
		return 0, err
	}
	defer crypto.ZeroizeBestEffort(material)

	newVersion := m.LatestVersion + 1
	if err := e.putVersion(ctx, name, version{Version: newVersion, Material: material, CreatedAt: time.Now()}); err != nil {
		return 0, err
	}
	m.LatestVersion = newVersion
	return newVersion, e.putMetadata(ctx, m)
}

// Encrypt seals plaintext under the named key's latest version, or the
// given version if non-zero, and returns the self-describing envelope
// "v:<version>:<base64(nonce||ct||tag)>".
func (e *Engine) Encrypt(ctx context.Context, name string, plaintext []byte, reqVersion int) (string, error) {
	m, ok, err := e.getMetadata(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.New(apperr.KindNotFound, "key %q not found", name)
	}
	if m.Type != KeyTypeAEAD {
		return "", apperr.New(apperr.KindInvalidArgument, "key %q is not an encryption key", name)
	}
	v := reqVersion
	if v == 0 {
		v = m.LatestVersion
	}
	if v < m.MinEncryptionVersion {
		return "", apperr.New(apperr.KindInvalidArgument, "version %d is below min_encryption_version for %q", v, name)
	}
	ver, err := e.getVersion(ctx, name, v)
	if err != nil {
		return "", err
	}
	record, err := crypto.Seal(ver.Material, plaintext)
	if err != nil {
		return "", fmt.Errorf("transit: failed to encrypt with %q v%d: %w", name, v, err)
	}
	return encodeEnvelope(v, record), nil
}

// Decrypt parses the version prefix, rejects versions below
// min_decryption_version, and opens the ciphertext with the corresponding
// key material.
func (e *Engine) Decrypt(ctx context.Context, name, ciphertext string) ([]byte, error) {
	m, ok, err := e.getMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "key %q not found", name)
	}
	v, record, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	if v < m.MinDecryptionVersion {
		return nil, apperr.New(apperr.KindForbidden, "version %d of %q is below min_decryption_version", v, name)
	}
	ver, err := e.getVersion(ctx, name, v)
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.Open(ver.Material, record)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// Rewrap decrypts ciphertext with its stored version and re-encrypts it
// under the latest version. Plaintext never leaves the engine. Per the
// Open Question on rewrap vs. min_decryption_version (DESIGN.md): rewrap
// is decrypt-then-encrypt, so it inherits Decrypt's rejection of versions
// below min_decryption_version rather than special-casing rewrap.
func (e *Engine) Rewrap(ctx context.Context, name, ciphertext string) (string, error) {
	plaintext, err := e.Decrypt(ctx, name, ciphertext)
	if err != nil {
		return "", err
	}
	defer crypto.ZeroizeBestEffort(plaintext)
	return e.Encrypt(ctx, name, plaintext, 0)
}

// Sign signs data with the named key's latest (or specified) version.
func (e *Engine) Sign(ctx context.Context, name string, data []byte, reqVersion int) (string, error) {
	m, ok, err := e.getMetadata(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.New(apperr.KindNotFound, "key %q not found", name)
	}
	if m.Type != KeyTypeEd25519 {
		return "", apperr.New(apperr.KindInvalidArgument, "key %q is not a signing key", name)
	}
	v := reqVersion
	if v == 0 {
		v = m.LatestVersion
	}
	ver, err := e.getVersion(ctx, name, v)
	if err != nil {
		return "", err
	}
	priv, _, err := splitEd25519(ver.Material)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, data)
	return encodeEnvelope(v, sig), nil
}

// Verify checks a version-prefixed signature produced by Sign.
func (e *Engine) Verify(ctx context.Context, name string, data []byte, signature string) (bool, error) {
	m, ok, err := e.getMetadata(ctx, name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, apperr.New(apperr.KindNotFound, "key %q not found", name)
	}
	if m.Type != KeyTypeEd25519 {
		return false, apperr.New(apperr.KindInvalidArgument, "key %q is not a signing key", name)
	}
	v, sig, err := decodeEnvelope(signature)
	if err != nil {
		return false, err
	}
	ver, err := e.getVersion(ctx, name, v)
	if err != nil {
		return false, err
	}
	_, pub, err := splitEd25519(ver.Material)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

// SetVersionBounds updates min_decryption_version and min_encryption_version.
func (e *Engine) SetVersionBounds(ctx context.Context, name string, minDecryption, minEncryption int) error {
	m, ok, err := e.getMetadata(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "key %q not found", name)
	}
	if minDecryption > 0 {
		m.MinDecryptionVersion = minDecryption
	}
	if minEncryption > 0 {
		m.MinEncryptionVersion = minEncryption
	}
	return e.putMetadata(ctx, m)
}

// DestroyVersion permanently removes a version's key material.
func (e *Engine) DestroyVersion(ctx context.Context, name string, v int) error {
	return e.store.Delete(ctx, versionKey(name, v))
}

// Metadata exposes a key's public bookkeeping fields.
func (e *Engine) Metadata(ctx context.Context, name string) (metaView map[string]any, err error) {
	m, ok, err := e.getMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "key %q not found", name)
	}
	return map[string]any{
		"name":                    m.Name,
		"type":                    string(m.Type),
		"latest_version":          m.LatestVersion,
		"min_decryption_version":  m.MinDecryptionVersion,
		"min_encryption_version":  m.MinEncryptionVersion,
	}, nil
}

func encodeEnvelope(v int, raw []byte) string {
	return fmt.Sprintf("v:%d:%s", v, base64.StdEncoding.EncodeToString(raw))
}

func decodeEnvelope(s string) (int, []byte, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "v" {
		return 0, nil, apperr.New(apperr.KindInvalidArgument, "malformed transit envelope")
	}
	v, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, nil, apperr.New(apperr.KindInvalidArgument, "malformed transit envelope version")
	}
	raw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return 0, nil, apperr.New(apperr.KindInvalidArgument, "malformed transit envelope payload")
	}
	return v, raw, nil
}
