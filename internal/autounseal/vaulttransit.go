package autounseal

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// VaultTransitProvider wraps root key material using a key in another,
// already-unsealed Vault (or zvault) instance's transit engine. This is
// the standard way production deployments break the bootstrapping
// circularity of "you need an unsealed vault to store the key that
// unseals this vault".
type VaultTransitProvider struct {
	client  *api.Client
	keyName string
}

// VaultTransitConfig configures VaultTransitProvider.
type VaultTransitConfig struct {
	// Address is the external Vault's API address, e.g.
	// "https://vault.internal:8200". If empty, VAULT_ADDR is used.
	Address string

	// Token authenticates to the external Vault. If empty, VAULT_TOKEN
	// is used.
	Token string

	// KeyName is the transit key name to encrypt and decrypt with.
	KeyName string
}

// NewVaultTransitProvider constructs a VaultTransitProvider.
func NewVaultTransitProvider(cfg VaultTransitConfig) (*VaultTransitProvider, error) {
	if cfg.KeyName == "" {
		return nil, fmt.Errorf("autounseal: vault transit key name is required")
	}

	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("autounseal: creating vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return &VaultTransitProvider{client: client, keyName: cfg.KeyName}, nil
}

// Name implements Provider.
func (p *VaultTransitProvider) Name() string { return "vault-transit" }

// WrapRootKey implements Provider via the transit engine's encrypt
// endpoint.
func (p *VaultTransitProvider) WrapRootKey(ctx context.Context, rootKey []byte) ([]byte, error) {
	resp, err := p.client.Logical().WriteWithContext(ctx, fmt.Sprintf("transit/encrypt/%s", p.keyName), map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(rootKey),
	})
	if err != nil {
		return nil, fmt.Errorf("autounseal: transit encrypt: %w", err)
	}
	ciphertext, ok := resp.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("autounseal: transit encrypt response missing ciphertext")
	}
	return []byte(ciphertext), nil
}

// UnwrapRootKey implements Provider via the transit engine's decrypt
// endpoint.
func (p *VaultTransitProvider) UnwrapRootKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	resp, err := p.client.Logical().WriteWithContext(ctx, fmt.Sprintf("transit/decrypt/%s", p.keyName), map[string]any{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("autounseal: transit decrypt: %w", err)
	}
	plaintextB64, ok := resp.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("autounseal: transit decrypt response missing plaintext")
	}
	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("autounseal: decoding transit plaintext: %w", err)
	}
	return plaintext, nil
}
