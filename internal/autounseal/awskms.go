package autounseal

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// kmsClient is the narrow AWS KMS surface this provider needs, matching
// the teacher's kmsClient interface convention for mockability in tests.
type kmsClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSProvider wraps root key material using an AWS KMS customer
// master key.
type AWSKMSProvider struct {
	client kmsClient
	keyID  string
}

// AWSKMSConfig configures AWSKMSProvider.
type AWSKMSConfig struct {
	// KeyID is the KMS key ID, ARN, or alias used to wrap and unwrap.
	KeyID string

	// Region overrides the AWS SDK's default region resolution. Optional.
	Region string
}

// NewAWSKMSProvider constructs an AWSKMSProvider, loading AWS credentials
// the standard SDK way (environment, shared config, IMDS).
func NewAWSKMSProvider(ctx context.Context, cfg AWSKMSConfig) (*AWSKMSProvider, error) {
	if cfg.KeyID == "" {
		return nil, fmt.Errorf("autounseal: aws kms key id is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("autounseal: loading AWS config: %w", err)
	}

	return &AWSKMSProvider{client: kms.NewFromConfig(awsCfg), keyID: cfg.KeyID}, nil
}

// Name implements Provider.
func (p *AWSKMSProvider) Name() string { return "awskms" }

// WrapRootKey implements Provider via KMS Encrypt.
func (p *AWSKMSProvider) WrapRootKey(ctx context.Context, rootKey []byte) ([]byte, error) {
	out, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(p.keyID),
		Plaintext: rootKey,
	})
	if err != nil {
		return nil, fmt.Errorf("autounseal: kms encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

// UnwrapRootKey implements Provider via KMS Decrypt.
func (p *AWSKMSProvider) UnwrapRootKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(p.keyID),
		CiphertextBlob: wrapped,
	})
	if err != nil {
		return nil, fmt.Errorf("autounseal: kms decrypt: %w", err)
	}
	return out.Plaintext, nil
}
