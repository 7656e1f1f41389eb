package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var eventsSubject string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Watch the event feed",
	Long: `Watch the admin event feed and print each event as it arrives.

Runs until interrupted. With --subject only events for the given
machine (or "dom0") are printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		stream, err := client.OpenEvents(ctx)
		if err != nil {
			return fmt.Errorf("failed to open event stream: %w", err)
		}
		defer func() {
			if closeErr := stream.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close event stream: %v\n", closeErr)
			}
		}()

		go func() {
			<-ctx.Done()
			_ = stream.Close()
		}()

		for {
			ev, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("event stream failed: %w", err)
			}

			if eventsSubject != "" && ev.Subject != eventsSubject {
				continue
			}

			fmt.Printf("%s\t%s", ev.Subject, ev.Name)
			for _, pair := range ev.Pairs {
				fmt.Printf("\t%s=%s", pair.Key, pair.Value)
			}
			fmt.Println()
		}
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsSubject, "subject", "", "only print events for this subject")
}
