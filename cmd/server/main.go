// Command server runs the document verification service and its
// maintenance jobs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"docgate/internal/platform/config"
	"docgate/internal/platform/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "docgate",
	Short: "Document verification and issuance decision service",
	Long: `docgate accepts identity documents, runs forensic analysis on them,
routes each one to approval, manual review or rejection, and issues an
on-chain attestation once a document is verified.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (YAML)")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepExpiredCmd, reconcileCmd, purgeCacheCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config and builds the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.Log.Level), nil
}
