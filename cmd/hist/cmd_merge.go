package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newMergeCmd() *cobra.Command {
	var cont bool
	var abort bool

	cmd := &cobra.Command{
		Use:   "merge [<branch>]",
		Short: "Merge a branch into the current branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case cont:
				h, err := r.MergeContinue(resolveAuthor(r, ""))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "merge completed: [%s %s]\n", currentBranchName(r), h.Short())
				return nil

			case abort:
				if err := r.MergeAbort(); err != nil {
					return err
				}
				fmt.Fprintln(out, "merge aborted")
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("a branch name is required")
			}
			branchName := args[0]
			current := currentBranchName(r)

			report, err := r.Merge(branchName, resolveAuthor(r, ""))

			var conflict *repo.ConflictError
			if err != nil && !errors.As(err, &conflict) {
				return err
			}

			switch {
			case report.AlreadyUpToDate:
				fmt.Fprintln(out, "already up to date")
			case report.FastForward:
				h, _ := r.ResolveRef("HEAD")
				fmt.Fprintf(out, "fast-forwarded %s to %s\n", current, h.Short())
			default:
				for _, f := range report.Files {
					printFileReport(out, f)
				}
				if report.HasConflicts {
					red := color.New(color.FgRed).SprintFunc()
					fmt.Fprintln(out, red(fmt.Sprintf("merge stopped with %d conflicted file(s)", len(conflict.Paths))))
					fmt.Fprintln(out, "fix conflicts, hist add the files, then hist merge --continue (or --abort)")
					return err
				}
				fmt.Fprintf(out, "[%s %s] Merge branch '%s'\n", current, report.MergeCommit.Short(), branchName)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cont, "continue", false, "finish a merge after resolving conflicts")
	cmd.Flags().BoolVar(&abort, "abort", false, "abandon the merge and restore the pre-merge state")

	return cmd
}

func printFileReport(out io.Writer, f repo.FileMergeReport) {
	switch f.Status {
	case "conflict":
		fmt.Fprintf(out, "  %s: CONFLICT (%d region(s))\n", f.Path, f.ConflictCount)
	case "added":
		fmt.Fprintf(out, "  %s: added\n", f.Path)
	case "deleted":
		fmt.Fprintf(out, "  %s: deleted\n", f.Path)
	default: // "clean"
		fmt.Fprintf(out, "  %s: clean\n", f.Path)
	}
}
