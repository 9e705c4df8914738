package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/remote"
	"github.com/odvcencio/hist/pkg/repo"
)

func newPushCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "push <remote> [branch]",
		Short: "Copy a branch and its objects into a remote repository",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			branch := ""
			if len(args) > 1 {
				branch = args[1]
			} else {
				branch, err = r.CurrentBranch()
				if err != nil {
					return fmt.Errorf("push: not on a branch, name one explicitly: %w", err)
				}
			}

			report, err := remote.Push(r, args[0], branch, force)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if report.UpToDate {
				fmt.Fprintln(out, "everything up to date")
				return nil
			}
			if report.Old == "" {
				fmt.Fprintf(out, "to %s: * [new branch] %s -> %s\n", report.Remote, report.Branch, report.New.Short())
			} else {
				fmt.Fprintf(out, "to %s: %s..%s %s (%d object(s))\n", report.Remote, report.Old.Short(), report.New.Short(), report.Branch, report.ObjectsWritten)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "allow non-fast-forward updates")

	return cmd
}
