// Package aws imports secrets from AWS Secrets Manager into a zvault
// KV-v2 mount, the one-shot migration path SPEC_FULL.md §C.3 adds for
// operators moving off a cloud secrets manager.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/zvault/zvault"
	"github.com/zvault/zvault/internal/engine"
	"github.com/zvault/zvault/internal/pipeline"
)

// secretsManagerClient is the narrow AWS Secrets Manager surface this
// importer needs.
type secretsManagerClient interface {
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Importer copies every secret in an AWS Secrets Manager account into a
// zvault KV-v2 mount, one version per secret.
type Importer struct {
	client secretsManagerClient
}

// Config configures Importer.
type Config struct {
	// Region overrides the AWS SDK's default region resolution. Optional.
	Region string
}

// New constructs an Importer using the standard AWS SDK credential
// chain.
func New(ctx context.Context, cfg Config) (*Importer, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("migrate/aws: loading AWS config: %w", err)
	}
	return &Importer{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

// Result reports what Import did.
type Result struct {
	Imported []string
	Failed   map[string]error
}

// Import lists every secret visible to the configured credentials and
// writes its current value into mountPath (a KV-v2 mount) under a
// subpath derived from the secret's name, authenticating to zvault with
// rootToken.
func (im *Importer) Import(ctx context.Context, srv *zvault.Server, rootToken, mountPath string) (Result, error) {
	result := Result{Failed: map[string]error{}}

	var nextToken *string
	for {
		page, err := im.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{NextToken: nextToken})
		if err != nil {
			return result, fmt.Errorf("migrate/aws: listing secrets: %w", err)
		}

		for _, entry := range page.SecretList {
			if entry.Name == nil {
				continue
			}
			name := *entry.Name

			value, err := im.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
				SecretId: awssdk.String(name),
			})
			if err != nil {
				result.Failed[name] = err
				continue
			}

			data := map[string]any{}
			if value.SecretString != nil {
				data["value"] = *value.SecretString
			} else {
				data["value_binary"] = value.SecretBinary
			}

			_, err = srv.Handle(ctx, pipeline.Request{
				Token:     rootToken,
				Path:      mountPath + "data/" + name,
				Operation: engine.OpCreate,
				Data:      data,
			})
			if err != nil {
				result.Failed[name] = err
				continue
			}
			result.Imported = append(result.Imported, name)
		}

		if page.NextToken == nil {
			break
		}
		nextToken = page.NextToken
	}

	return result, nil
}
