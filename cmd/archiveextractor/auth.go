package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAuthCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect source authentication",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <source>",
		Short: "Log in (or load stored cookies) and verify premium access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := parseSource(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			application, _, closer, err := openApp(ctx, global)
			if err != nil {
				return err
			}
			defer closer.Close()

			status, verdict, err := application.CheckAuth(ctx, source)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s (generation %d, logins %d)\n", source, status.State, status.Generation, status.AuthCount)
			if !status.LastValidated.IsZero() {
				fmt.Fprintf(out, "validated at %s\n", status.LastValidated.Format(time.RFC3339))
			}
			if err != nil {
				return err
			}
			if !verdict.OK {
				return fmt.Errorf("premium access not confirmed: %s", verdict.Reason)
			}
			fmt.Fprintf(out, "premium access confirmed (%s)\n", verdict.Reason)
			return nil
		},
	})
	return cmd
}

func newKeepaliveCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "keepalive",
		Short: "Refresh every session on the configured schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, _, closer, err := openApp(ctx, global)
			if err != nil {
				return err
			}
			defer closer.Close()
			return application.RunKeepalive(ctx)
		},
	}
}
