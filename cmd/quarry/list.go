package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/quarry/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List machines",
	Long: `List all machines known to the admin API.

Shows machine name, class, and power state.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML listing
  -o json   JSON listing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		vms, err := client.Domains.Info(ctx)
		if err != nil {
			return fmt.Errorf("failed to list machines: %w", err)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatVMList(vms)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}
