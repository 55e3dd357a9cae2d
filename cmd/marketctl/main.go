// Command marketctl is the operator and trader CLI for a cardmarket server.
// Mutating commands sign their requests with the key configured under
// [operator] (a raw key or an encrypted key file).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/cardmarket/internal/client"
	"github.com/alanyoungcy/cardmarket/internal/config"
	"github.com/alanyoungcy/cardmarket/internal/crypto"
)

var (
	configPath  string
	apiURL      string
	keyFile     string
	keyPassword string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "server URL (overrides operator.api_url)")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key-file", "", "encrypted key file (overrides operator.key_file)")
	rootCmd.PersistentFlags().StringVar(&keyPassword, "password", "", "key file password (overrides operator.key_password)")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listingsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(settlementsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(auctionCmd)
	rootCmd.AddCommand(bidCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(withdrawCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(unpauseCmd)
	rootCmd.AddCommand(settleCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "marketctl",
	Short:        "Trade cards and operate a cardmarket server",
	SilenceUsage: true,
}

// loadConfig reads the config file and applies the command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.Operator.APIURL = apiURL
	}
	if keyFile != "" {
		cfg.Operator.KeyFile = keyFile
		cfg.Operator.PrivateKey = ""
	}
	if keyPassword != "" {
		cfg.Operator.KeyPassword = keyPassword
	}
	return cfg, nil
}

// loadSigner resolves the configured key.
func loadSigner(cfg *config.Config) (*crypto.Signer, error) {
	key, err := crypto.LoadKey(crypto.KeySource{
		RawPrivateKey: cfg.Operator.PrivateKey,
		KeyFile:       cfg.Operator.KeyFile,
		Password:      cfg.Operator.KeyPassword,
	})
	if err != nil {
		return nil, err
	}
	return crypto.NewSigner(key), nil
}

// readClient builds an unsigned client.
func readClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Operator.APIURL, nil), nil
}

// signedClient builds a client that signs with the configured key.
func signedClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	signer, err := loadSigner(cfg)
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}
	return client.New(cfg.Operator.APIURL, signer), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
