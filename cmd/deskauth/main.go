package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := DefaultOptions()
	cmd := &cobra.Command{
		Use:           "deskauth",
		Short:         "Session and credential broker for the cloud desktop",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			validated, err := opts.Validate()
			if err != nil {
				return err
			}
			completed, err := validated.Complete(ctx)
			if err != nil {
				return err
			}
			return completed.Run(ctx)
		},
	}
	opts.BindFlags(cmd)
	return cmd
}
