package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/quarry"
	"github.com/jbweber/quarry/internal/output"
	"github.com/jbweber/quarry/wire"
)

// Property commands. The target is a machine name, or "dom0" for the
// global property set.

var propCmd = &cobra.Command{
	Use:   "prop",
	Short: "Inspect and change properties",
	Long: `Inspect and change properties of a machine or the global scope.

The target argument is a machine name, or "dom0" for global properties.`,
}

func init() {
	propCmd.AddCommand(propListCmd)
	propCmd.AddCommand(propGetCmd)
	propCmd.AddCommand(propSetCmd)
	propCmd.AddCommand(propResetCmd)
}

// propTarget is the property surface shared by machines and the global
// scope.
type propTarget interface {
	Properties(ctx context.Context) ([]quarry.PropertyDescriptor, error)
	GetProperty(ctx context.Context, name string) (quarry.Value, error)
	SetProperty(ctx context.Context, name string, v quarry.Value) error
	ResetProperty(ctx context.Context, name string) error
	PropertyIsDefault(ctx context.Context, name string) (bool, error)
}

func resolvePropTarget(ctx context.Context, client *quarry.Client, target string) (propTarget, error) {
	if target == wire.GlobalDest {
		return client, nil
	}
	vm, err := client.Domains.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get machine: %w", err)
	}
	return vm, nil
}

var propListCmd = &cobra.Command{
	Use:   "list <target>",
	Short: "List properties with their current values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		target, err := resolvePropTarget(ctx, client, args[0])
		if err != nil {
			return err
		}

		descs, err := target.Properties(ctx)
		if err != nil {
			return fmt.Errorf("failed to list properties: %w", err)
		}

		props := make([]output.Property, 0, len(descs))
		for _, d := range descs {
			row := output.Property{
				Name:     d.Name,
				Type:     string(d.Type),
				Settable: d.Settable,
			}
			if v, err := target.GetProperty(ctx, d.Name); err == nil {
				row.Value = v.String()
			}
			if def, err := target.PropertyIsDefault(ctx, d.Name); err == nil {
				row.Default = def
			}
			props = append(props, row)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatProperties(props)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var propGetCmd = &cobra.Command{
	Use:   "get <target> <property>",
	Short: "Print one property value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		target, err := resolvePropTarget(ctx, client, args[0])
		if err != nil {
			return err
		}

		v, err := target.GetProperty(ctx, args[1])
		if err != nil {
			return fmt.Errorf("failed to get property: %w", err)
		}

		fmt.Println(v.String())
		return nil
	},
}

var propSetCmd = &cobra.Command{
	Use:   "set <target> <property> <value>",
	Short: "Set one property",
	Long: `Set a property to a new value.

The value is parsed according to the property's declared type: booleans
as True/False, sizes and integers as decimal numbers, everything else
verbatim.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		propName, raw := args[1], args[2]

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		target, err := resolvePropTarget(ctx, client, args[0])
		if err != nil {
			return err
		}

		descs, err := target.Properties(ctx)
		if err != nil {
			return fmt.Errorf("failed to list properties: %w", err)
		}

		var desc *quarry.PropertyDescriptor
		for i := range descs {
			if descs[i].Name == propName {
				desc = &descs[i]
				break
			}
		}
		if desc == nil {
			return fmt.Errorf("no such property: %s", propName)
		}

		v, err := quarry.ParseValue(desc.Type, raw)
		if err != nil {
			return fmt.Errorf("invalid value for %s property %s: %w", desc.Type, propName, err)
		}

		if err := target.SetProperty(ctx, propName, v); err != nil {
			return fmt.Errorf("failed to set property: %w", err)
		}

		fmt.Printf("✓ Property %s set\n", propName)
		return nil
	},
}

var propResetCmd = &cobra.Command{
	Use:   "reset <target> <property>",
	Short: "Reset one property to its default",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		target, err := resolvePropTarget(ctx, client, args[0])
		if err != nil {
			return err
		}

		if err := target.ResetProperty(ctx, args[1]); err != nil {
			return fmt.Errorf("failed to reset property: %w", err)
		}

		fmt.Printf("✓ Property %s reset\n", args[1])
		return nil
	},
}
