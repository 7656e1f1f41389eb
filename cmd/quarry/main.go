package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/quarry"
	"github.com/jbweber/quarry/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath   string
	outputFormat string
	noHeaders    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Quarry - Qubes admin API client",
	Long: `Quarry is a CLI client for the Qubes-style admin API.

It provides commands to list, create, and control machines, inspect and
change properties, and manage storage pools and volumes over the admin
socket or a qrexec-style transport.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the client configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false, "omit headers in table output")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(unpauseCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(propCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(eventsCmd)
}

// newClient builds a client from the configuration file, falling back to
// defaults when the file is absent.
func newClient() (*quarry.Client, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	t, err := cfg.NewTransport()
	if err != nil {
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}

	return quarry.New(t), nil
}
