// Package hashicorp imports secrets from a HashiCorp Vault KV-v2 mount
// into a zvault KV-v2 mount, the one-shot migration path SPEC_FULL.md
// §C.3 adds for operators moving off Vault itself.
package hashicorp

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/zvault/zvault"
	"github.com/zvault/zvault/internal/engine"
	"github.com/zvault/zvault/internal/pipeline"
)

// Importer copies every secret under a source Vault KV-v2 mount into a
// destination zvault KV-v2 mount.
type Importer struct {
	client *api.Client
}

// Config configures Importer.
type Config struct {
	// Address is the source Vault's API address. If empty, VAULT_ADDR is
	// used.
	Address string

	// Token authenticates to the source Vault. If empty, VAULT_TOKEN is
	// used.
	Token string
}

// New constructs an Importer against the source Vault.
func New(cfg Config) (*Importer, error) {
	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("migrate/hashicorp: creating vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return &Importer{client: client}, nil
}

// Result reports what Import did.
type Result struct {
	Imported []string
	Failed   map[string]error
}

// Import walks every entry under sourceMount (a Vault KV-v2 mount, e.g.
// "secret/") recursively and writes each leaf secret into destMount (a
// zvault KV-v2 mount), authenticating to zvault with rootToken.
func (im *Importer) Import(ctx context.Context, srv *zvault.Server, rootToken, sourceMount, destMount string) (Result, error) {
	result := Result{Failed: map[string]error{}}
	if err := im.walk(ctx, srv, rootToken, sourceMount, destMount, "", &result); err != nil {
		return result, err
	}
	return result, nil
}

func (im *Importer) walk(ctx context.Context, srv *zvault.Server, rootToken, sourceMount, destMount, relPath string, result *Result) error {
	listPath := sourceMount + "metadata/" + relPath
	secret, err := im.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		return fmt.Errorf("migrate/hashicorp: listing %q: %w", listPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil
	}
	keysRaw, ok := secret.Data["keys"].([]any)
	if !ok {
		return nil
	}

	for _, k := range keysRaw {
		name, ok := k.(string)
		if !ok {
			continue
		}
		if len(name) > 0 && name[len(name)-1] == '/' {
			if err := im.walk(ctx, srv, rootToken, sourceMount, destMount, relPath+name, result); err != nil {
				return err
			}
			continue
		}

		childPath := relPath + name
		readPath := sourceMount + "data/" + childPath
		secretValue, err := im.client.Logical().ReadWithContext(ctx, readPath)
		if err != nil {
			result.Failed[childPath] = err
			continue
		}
		if secretValue == nil || secretValue.Data == nil {
			continue
		}
		data, ok := secretValue.Data["data"].(map[string]any)
		if !ok {
			continue
		}

		_, err = srv.Handle(ctx, pipeline.Request{
			Token:     rootToken,
			Path:      destMount + "data/" + childPath,
			Operation: engine.OpCreate,
			Data:      data,
		})
		if err != nil {
			result.Failed[childPath] = err
			continue
		}
		result.Imported = append(result.Imported, childPath)
	}

	return nil
}
