/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/sfm-market/storefront/config"
	"github.com/spf13/cobra"
)

var verbosity int

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront API server and operator tools",
	Long: `Storefront serves the catalog and account API behind cookie sessions.

	storefront server
	storefront migrate up
	storefront user promote --email someone@example.com --role SELLER
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", -1, "log verbosity; overrides LOG_VERBOSITY when set")
}

// loadConfig reads the environment and builds the process logger.
func loadConfig() (config.Config, logr.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, logr.Discard(), err
	}
	if verbosity >= 0 {
		cfg.LogVerbosity = verbosity
	}
	stdr.SetVerbosity(cfg.LogVerbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)).WithName("storefront")
	return cfg, logger, nil
}
