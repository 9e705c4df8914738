package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/remote"
	"github.com/odvcencio/hist/pkg/repo"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <remote>",
		Short: "Copy missing objects and remote-tracking refs from a remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			report, err := remote.Fetch(r, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(report.Updated) == 0 {
				fmt.Fprintln(out, "already up to date")
				return nil
			}
			fmt.Fprintf(out, "from %s: %d object(s)\n", report.Remote, report.ObjectsWritten)
			for _, u := range report.Updated {
				if u.Old == "" {
					fmt.Fprintf(out, "  * [new branch] %s -> %s/%s\n", u.Branch, report.Remote, u.Branch)
				} else {
					fmt.Fprintf(out, "  %s..%s %s -> %s/%s\n", u.Old.Short(), u.New.Short(), u.Branch, report.Remote, u.Branch)
				}
			}
			return nil
		},
	}
}
