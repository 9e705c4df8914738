package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newRestoreCmd() *cobra.Command {
	var staged bool

	cmd := &cobra.Command{
		Use:   "restore [--staged] <paths...>",
		Short: "Restore working tree files from the index, or unstage them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if staged {
				return r.RestoreStaged(args)
			}
			return r.RestoreWorktree(args)
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", false, "restore the index from HEAD instead of the working tree")

	return cmd
}
