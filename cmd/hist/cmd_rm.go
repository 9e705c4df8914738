package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newRmCmd() *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "rm <paths...>",
		Short: "Remove files from the index and working tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			return r.Remove(args, cached)
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "unstage only, keep the working copy")

	return cmd
}
