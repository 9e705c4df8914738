package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newBlameCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "blame <path>",
		Short: "Attribute each line of a file to the commit that introduced it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			lines, err := r.Blame(args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, l := range lines {
				marker := " "
				if l.Boundary {
					marker = "^"
				}
				ts := time.Unix(l.Timestamp, 0).Format("2006-01-02")
				fmt.Fprintf(out, "%s%s (%s %s %4d) %s\n", marker, l.CommitHash.Short(), l.Author, ts, l.LineNo, l.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum commits to scan (0 = to the root)")

	return cmd
}
