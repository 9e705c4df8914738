package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/remote"
	"github.com/odvcencio/hist/pkg/repo"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <remote> [branch]",
		Short: "Fetch from a remote and merge its branch into the current branch",
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
					return fmt.Errorf("pull: not on a branch, name one explicitly: %w", err)
				}
			}

			report, err := remote.Pull(r, args[0], branch, resolveAuthor(r, ""))

			var conflict *repo.ConflictError
			if err != nil && !errors.As(err, &conflict) {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fetched %d object(s) from %s\n", report.Fetch.ObjectsWritten, args[0])

			switch {
			case report.Merge == nil:
				fmt.Fprintln(out, "nothing to merge")
			case report.Merge.AlreadyUpToDate:
				fmt.Fprintln(out, "already up to date")
			case report.Merge.FastForward:
				h, _ := r.ResolveRef("HEAD")
				fmt.Fprintf(out, "fast-forwarded %s to %s\n", branch, h.Short())
			case report.Merge.HasConflicts:
				fmt.Fprintf(out, "merge stopped with %d conflicted file(s)\n", len(conflict.Paths))
				fmt.Fprintln(out, "fix conflicts, hist add the files, then hist merge --continue (or --abort)")
				return err
			default:
				fmt.Fprintf(out, "merged %s/%s: [%s]\n", args[0], branch, report.Merge.MergeCommit.Short())
			}
			return nil
		},
	}
}
