package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/quarry"
)

// Lifecycle commands all follow the same shape: resolve the machine
// through the collection, issue one admin call, report the outcome.

func lifecycleRunE(verb, done string, op func(ctx context.Context, vm *quarry.VM) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		vmName := args[0]

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		vm, err := client.Domains.Get(ctx, vmName)
		if err != nil {
			return fmt.Errorf("failed to get machine: %w", err)
		}

		if err := op(ctx, vm); err != nil {
			return fmt.Errorf("failed to %s machine: %w", verb, err)
		}

		fmt.Printf("✓ Machine %s %s\n", vmName, done)
		return nil
	}
}

var startCmd = &cobra.Command{
	Use:   "start <vm-name>",
	Short: "Start a machine",
	Args:  cobra.ExactArgs(1),
	RunE: lifecycleRunE("start", "started", func(ctx context.Context, vm *quarry.VM) error {
		return vm.Start(ctx)
	}),
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown <vm-name>",
	Short: "Shut down a machine",
	Long: `Request a clean shutdown of a running machine.

The call returns once the request is accepted; shutdown completes
asynchronously. Use events or list to observe the state change.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmName := args[0]

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		vm, err := client.Domains.Get(ctx, vmName)
		if err != nil {
			return fmt.Errorf("failed to get machine: %w", err)
		}

		if err := vm.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down machine: %w", err)
		}

		fmt.Printf("✓ Shutdown of %s requested\n", vmName)
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill <vm-name>",
	Short: "Forcibly stop a machine",
	Args:  cobra.ExactArgs(1),
	RunE: lifecycleRunE("kill", "killed", func(ctx context.Context, vm *quarry.VM) error {
		return vm.Kill(ctx)
	}),
}

var pauseCmd = &cobra.Command{
	Use:   "pause <vm-name>",
	Short: "Pause a running machine",
	Args:  cobra.ExactArgs(1),
	RunE: lifecycleRunE("pause", "paused", func(ctx context.Context, vm *quarry.VM) error {
		return vm.Pause(ctx)
	}),
}

var unpauseCmd = &cobra.Command{
	Use:   "unpause <vm-name>",
	Short: "Resume a paused machine",
	Args:  cobra.ExactArgs(1),
	RunE: lifecycleRunE("unpause", "resumed", func(ctx context.Context, vm *quarry.VM) error {
		return vm.Unpause(ctx)
	}),
}

var removeCmd = &cobra.Command{
	Use:   "remove <vm-name>",
	Short: "Remove a machine",
	Long: `Remove a halted machine and its storage.

The machine must be halted; removing a running machine fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmName := args[0]

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := client.Domains.Remove(ctx, vmName); err != nil {
			return fmt.Errorf("failed to remove machine: %w", err)
		}

		fmt.Printf("✓ Machine %s removed\n", vmName)
		return nil
	},
}
