package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jbweber/quarry/internal/output"
)

// Pool and volume management commands
var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage storage pools",
	Long: `Manage storage pools and their volumes.

Storage pools hold machine volumes. Each pool is backed by a driver
with driver-specific configuration.`,
}

func init() {
	poolCmd.AddCommand(poolListCmd)
	poolCmd.AddCommand(poolInfoCmd)
	poolCmd.AddCommand(poolDriversCmd)
	poolCmd.AddCommand(poolAddCmd)
	poolCmd.AddCommand(poolRemoveCmd)
	poolCmd.AddCommand(volumeCmd)
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all storage pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		names, err := client.Pools.Names(ctx)
		if err != nil {
			return fmt.Errorf("failed to list pools: %w", err)
		}

		if len(names) == 0 {
			fmt.Println("No storage pools found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		if !noHeaders {
			fmt.Fprintln(w, "NAME\tDRIVER")
		}
		for _, name := range names {
			pool, err := client.Pools.Get(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to get pool %s: %w", name, err)
			}
			driver, err := pool.Driver(ctx)
			if err != nil {
				return fmt.Errorf("failed to get pool %s driver: %w", name, err)
			}
			fmt.Fprintf(w, "%s\t%s\n", name, driver)
		}
		return w.Flush()
	},
}

var poolInfoCmd = &cobra.Command{
	Use:   "info <pool-name>",
	Short: "Show pool configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poolName := args[0]

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		pool, err := client.Pools.Get(ctx, poolName)
		if err != nil {
			return fmt.Errorf("failed to get pool: %w", err)
		}

		cfg, err := pool.Config(ctx)
		if err != nil {
			return fmt.Errorf("failed to get pool configuration: %w", err)
		}

		keys := make([]string, 0, len(cfg))
		for k := range cfg {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Printf("%s: %s\n", k, cfg[k])
		}
		return nil
	},
}

var poolDriversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "List available pool drivers",
	Long: `List the pool drivers the admin API offers, with the configuration
parameters each driver accepts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		drivers, err := client.PoolDrivers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list pool drivers: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		if !noHeaders {
			fmt.Fprintln(w, "DRIVER\tPARAMETERS")
		}
		for _, driver := range drivers {
			params, err := client.PoolDriverParameters(ctx, driver)
			if err != nil {
				return fmt.Errorf("failed to get driver %s parameters: %w", driver, err)
			}
			fmt.Fprintf(w, "%s\t%s\n", driver, joinOrDash(params))
		}
		return w.Flush()
	},
}

var poolAddParams []string

var poolAddCmd = &cobra.Command{
	Use:   "add <pool-name> <driver>",
	Short: "Add a storage pool",
	Long: `Add a new storage pool backed by the given driver.

Driver parameters are passed as repeated --param key=value flags; the
accepted keys are listed by "quarry pool drivers".

Example:
  quarry pool add ssd lvm_thin --param volume_group=qubes --param thin_pool=ssd`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		poolName, driver := args[0], args[1]

		params, err := parseKeyValuePairs(poolAddParams)
		if err != nil {
			return fmt.Errorf("invalid --param: %w", err)
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := client.AddPool(ctx, poolName, driver, params); err != nil {
			return fmt.Errorf("failed to add pool: %w", err)
		}

		fmt.Printf("✓ Pool %s added\n", poolName)
		return nil
	},
}

var poolRemoveCmd = &cobra.Command{
	Use:   "remove <pool-name>",
	Short: "Remove a storage pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poolName := args[0]

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := client.RemovePool(ctx, poolName); err != nil {
			return fmt.Errorf("failed to remove pool: %w", err)
		}

		fmt.Printf("✓ Pool %s removed\n", poolName)
		return nil
	},
}

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage volumes",
	Long:  `Inspect and manage volumes addressed by pool and volume id.`,
}

func init() {
	volumeCmd.AddCommand(volumeInfoCmd)
	volumeCmd.AddCommand(volumeResizeCmd)
	volumeCmd.AddCommand(volumeRevisionsCmd)
	volumeCmd.AddCommand(volumeRevertCmd)
}

var volumeInfoCmd = &cobra.Command{
	Use:   "info <pool-name> <volume-id>",
	Short: "Show volume details",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		info, err := client.VolumeByPool(args[0], args[1]).Info(ctx)
		if err != nil {
			return fmt.Errorf("failed to get volume info: %w", err)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatVolumeInfo(info)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var volumeResizeCmd = &cobra.Command{
	Use:   "resize <pool-name> <volume-id> <size-bytes>",
	Short: "Resize a volume",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || size < 0 {
			return fmt.Errorf("invalid size: %s", args[2])
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := client.VolumeByPool(args[0], args[1]).Resize(ctx, size); err != nil {
			return fmt.Errorf("failed to resize volume: %w", err)
		}

		fmt.Printf("✓ Volume %s resized to %d bytes\n", args[1], size)
		return nil
	},
}

var volumeRevisionsCmd = &cobra.Command{
	Use:   "revisions <pool-name> <volume-id>",
	Short: "List volume revisions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		revisions, err := client.VolumeByPool(args[0], args[1]).Revisions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list revisions: %w", err)
		}

		if len(revisions) == 0 {
			fmt.Println("No revisions found")
			return nil
		}
		for _, rev := range revisions {
			fmt.Println(rev)
		}
		return nil
	},
}

var volumeRevertCmd = &cobra.Command{
	Use:   "revert <pool-name> <volume-id> <revision>",
	Short: "Revert a volume to a revision",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := client.VolumeByPool(args[0], args[1]).Revert(ctx, args[2]); err != nil {
			return fmt.Errorf("failed to revert volume: %w", err)
		}

		fmt.Printf("✓ Volume %s reverted to %s\n", args[1], args[2])
		return nil
	},
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, " ")
}
