package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zvault/zvault"
	"github.com/zvault/zvault/providers/migrate/aws"
	"github.com/zvault/zvault/providers/migrate/hashicorp"
)

var (
	rootToken    string
	destMount    string
	awsRegion    string
	vaultAddr    string
	vaultToken   string
	sourceMount  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zvault-migrate",
	Short: "zvault-migrate imports secrets from another secrets manager into a running zvault",
}

var migrateAWSCmd = &cobra.Command{
	Use:   "aws",
	Short: "import every secret from AWS Secrets Manager into a zvault KV-v2 mount",
	RunE:  runMigrateAWS,
}

var migrateHashicorpCmd = &cobra.Command{
	Use:   "hashicorp",
	Short: "import every secret from a HashiCorp Vault KV-v2 mount into a zvault KV-v2 mount",
	RunE:  runMigrateHashicorp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootToken, "root-token", "", "zvault root token (required)")
	rootCmd.PersistentFlags().StringVar(&destMount, "dest-mount", "secret/", "destination zvault KV-v2 mount path")
	_ = rootCmd.MarkPersistentFlagRequired("root-token")

	migrateAWSCmd.Flags().StringVar(&awsRegion, "region", "", "AWS region, overrides the SDK's default resolution")

	migrateHashicorpCmd.Flags().StringVar(&vaultAddr, "vault-addr", "", "source Vault address, defaults to VAULT_ADDR")
	migrateHashicorpCmd.Flags().StringVar(&vaultToken, "vault-token", "", "source Vault token, defaults to VAULT_TOKEN")
	migrateHashicorpCmd.Flags().StringVar(&sourceMount, "source-mount", "secret/", "source Vault KV-v2 mount path")

	rootCmd.AddCommand(migrateAWSCmd, migrateHashicorpCmd)
}

func newServer() (*zvault.Server, error) {
	cfg, err := zvault.LoadConfigFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	cfg.Logger = slog.Default()
	srv, err := zvault.NewServer(cfg)
	if err != nil {
		return nil, fmt.Errorf("assembling server: %w", err)
	}
	return srv, nil
}

func runMigrateAWS(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	srv, err := newServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	importer, err := aws.New(ctx, aws.Config{Region: awsRegion})
	if err != nil {
		return fmt.Errorf("constructing AWS importer: %w", err)
	}

	result, err := importer.Import(ctx, srv, rootToken, destMount)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	reportResult(result.Imported, result.Failed)
	return nil
}

func runMigrateHashicorp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	srv, err := newServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	importer, err := hashicorp.New(hashicorp.Config{Address: vaultAddr, Token: vaultToken})
	if err != nil {
		return fmt.Errorf("constructing HashiCorp importer: %w", err)
	}

	result, err := importer.Import(ctx, srv, rootToken, sourceMount, destMount)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	reportResult(result.Imported, result.Failed)
	return nil
}

func reportResult(imported []string, failed map[string]error) {
	fmt.Printf("imported %d secret(s)\n", len(imported))
	for name, err := range failed {
		fmt.Fprintf(os.Stderr, "failed to import %q: %v\n", name, err)
	}
	if len(failed) > 0 {
		os.Exit(1)
	}
}
