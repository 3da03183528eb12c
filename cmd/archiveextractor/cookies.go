package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ArchiveExtractor/internal/config"
	"ArchiveExtractor/internal/credentials"
)

func newCookiesCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Manage stored session cookies",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "save <source> [file]",
			Short: "Store cookies exported from a browser (JSON list or map, read from stdin without a file)",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore(global)
				if err != nil {
					return err
				}
				source, err := parseSource(args[0])
				if err != nil {
					return err
				}

				var raw []byte
				if len(args) == 2 && args[1] != "-" {
					raw, err = os.ReadFile(args[1])
				} else {
					raw, err = io.ReadAll(cmd.InOrStdin())
				}
				if err != nil {
					return fmt.Errorf("read cookies: %w", err)
				}

				set, err := credentials.ParseCookieSet(raw)
				if err != nil {
					return err
				}
				res, err := store.Save(source, set)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %d cookies for %s to %s", res.CookieCount, source, res.Path)
				if res.Skipped > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), " (%d malformed entries skipped)", res.Skipped)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			},
		},
		&cobra.Command{
			Use:   "load <source>",
			Short: "Show what is stored for a source (names and age only)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore(global)
				if err != nil {
					return err
				}
				source, err := parseSource(args[0])
				if err != nil {
					return err
				}
				status, err := store.Status(source)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !status.Stored {
					fmt.Fprintf(out, "no cookies stored for %s\n", source)
					return nil
				}
				fmt.Fprintf(out, "%s: %d cookies, saved %s (%s ago) in %s\n", source, status.CookieCount,
					status.SavedAt.Format(time.RFC3339), status.Age.Round(time.Minute), status.Environment)

				bundle, err := store.Load(source)
				if err != nil {
					return err
				}
				for _, name := range credentials.FromMap(bundle.Cookies).Names() {
					fmt.Fprintf(out, "  %s\n", name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear <source>",
			Short: "Delete stored cookies for a source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore(global)
				if err != nil {
					return err
				}
				source, err := parseSource(args[0])
				if err != nil {
					return err
				}
				if err := store.Clear(source); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared cookies for %s\n", source)
				return nil
			},
		},
	)
	return cmd
}

// openStore builds only the cookie store; cookie commands need no browser or ledger.
func openStore(global *globalFlags) (*credentials.Store, error) {
	cfg, err := loadConfig(global)
	if err != nil {
		return nil, err
	}
	return newStore(cfg), nil
}

func newStore(cfg config.Config) *credentials.Store {
	return credentials.NewStore(cfg.Session.CredentialsDir, cfg.Session.Environment, nil)
}
