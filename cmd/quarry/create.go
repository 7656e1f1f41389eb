package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbweber/quarry"
)

var (
	createClass    string
	createTemplate string
	createPool     string
	createPools    []string
)

var createCmd = &cobra.Command{
	Use:   "create <vm-name> <label>",
	Short: "Create a machine",
	Long: `Create a new machine with the given name and label.

The machine class defaults to AppVM; template-based classes take the
template with --template. Storage placement can be overridden with
--pool (all volumes) or repeated --volume-pool volume=pool pairs.

Example:
  quarry create work blue --template fedora-41
  quarry create vault black --template fedora-41 --pool ssd
  quarry create build red --template fedora-41 --volume-pool private=ssd`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmName := args[0]
		label := args[1]

		pools, err := parseKeyValuePairs(createPools)
		if err != nil {
			return err
		}
		if createPool != "" && len(pools) > 0 {
			return fmt.Errorf("--pool and --volume-pool are mutually exclusive")
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		vm, err := client.NewVM(ctx, createClass, vmName, label, quarry.NewVMOptions{
			Template: createTemplate,
			Pool:     createPool,
			Pools:    pools,
		})
		if err != nil {
			return fmt.Errorf("failed to create machine: %w", err)
		}

		fmt.Printf("✓ Machine %s created (%s)\n", vm.Name(), vm.Class())
		return nil
	},
}

var (
	clonePool  string
	clonePools []string
)

var cloneCmd = &cobra.Command{
	Use:   "clone <src-name> <new-name>",
	Short: "Clone a machine",
	Long: `Clone an existing machine under a new name.

The clone copies the source machine's properties and storage. Storage
placement can be overridden with --pool or repeated --volume-pool
volume=pool pairs.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		srcName := args[0]
		newName := args[1]

		pools, err := parseKeyValuePairs(clonePools)
		if err != nil {
			return err
		}
		if clonePool != "" && len(pools) > 0 {
			return fmt.Errorf("--pool and --volume-pool are mutually exclusive")
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		vm, err := client.CloneVM(ctx, srcName, newName, quarry.CloneVMOptions{
			Pool:  clonePool,
			Pools: pools,
		})
		if err != nil {
			return fmt.Errorf("failed to clone machine: %w", err)
		}

		fmt.Printf("✓ Machine %s cloned to %s\n", srcName, vm.Name())
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createClass, "class", "AppVM", "machine class")
	createCmd.Flags().StringVar(&createTemplate, "template", "", "template machine for template-based classes")
	createCmd.Flags().StringVar(&createPool, "pool", "", "storage pool for all volumes")
	createCmd.Flags().StringArrayVar(&createPools, "volume-pool", nil, "per-volume pool as volume=pool (repeatable)")

	cloneCmd.Flags().StringVar(&clonePool, "pool", "", "storage pool for all volumes")
	cloneCmd.Flags().StringArrayVar(&clonePools, "volume-pool", nil, "per-volume pool as volume=pool (repeatable)")
}

func parseKeyValuePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	pools := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		volume, pool, ok := strings.Cut(pair, "=")
		if !ok || volume == "" || pool == "" {
			return nil, fmt.Errorf("invalid pair %q (expected key=value)", pair)
		}
		pools[volume] = pool
	}
	return pools, nil
}
