package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/remote"
	"github.com/odvcencio/hist/pkg/repo"
)

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export and import refs with their objects as a single file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <file> [refs...]",
		Short: "Write refs and every reachable object into a bundle file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			info, err := remote.CreateBundle(r, args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bundled %d ref(s), %d object(s) into %s\n", len(info.Refs), info.Objects, args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unbundle <file>",
		Short: "Ingest a bundle's objects and report its refs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			info, err := remote.Unbundle(r, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ingested %d new object(s)\n", info.Objects)
			for _, ref := range info.Refs {
				fmt.Fprintf(out, "  %s %s\n", ref.Hash.Short(), ref.Name)
			}
			return nil
		},
	})

	return cmd
}
