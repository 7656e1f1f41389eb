package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// Label commands
var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "List labels",
	Long:  `List the labels machines can carry, with their colors.`,
}

func init() {
	labelCmd.AddCommand(labelListCmd)
}

var labelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		names, err := client.Labels.Names(ctx)
		if err != nil {
			return fmt.Errorf("failed to list labels: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		if !noHeaders {
			fmt.Fprintln(w, "INDEX\tNAME\tCOLOR")
		}
		for _, name := range names {
			label, err := client.Labels.Get(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to get label %s: %w", name, err)
			}
			index, err := label.Index(ctx)
			if err != nil {
				return fmt.Errorf("failed to get label %s index: %w", name, err)
			}
			color, err := label.Color(ctx)
			if err != nil {
				return fmt.Errorf("failed to get label %s color: %w", name, err)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", strconv.Itoa(index), name, color)
		}
		return w.Flush()
	},
}
