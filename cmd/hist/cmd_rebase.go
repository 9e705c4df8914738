package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newRebaseCmd() *cobra.Command {
	var cont bool
	var abort bool

	cmd := &cobra.Command{
		Use:   "rebase [<upstream>]",
		Short: "Replay the current branch's commits onto another base",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case cont:
				report, err := r.RebaseContinue()
				return printRebaseOutcome(out, r, report, err)

			case abort:
				if err := r.RebaseAbort(); err != nil {
					return err
				}
				fmt.Fprintln(out, "rebase aborted")
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("an upstream revision is required")
			}
			report, err := r.Rebase(args[0])
			return printRebaseOutcome(out, r, report, err)
		},
	}

	cmd.Flags().BoolVar(&cont, "continue", false, "resume the rebase after resolving conflicts")
	cmd.Flags().BoolVar(&abort, "abort", false, "abandon the rebase and restore the original branch")

	return cmd
}

func printRebaseOutcome(out io.Writer, r *repo.Repo, report *repo.RebaseReport, err error) error {
	var conflict *repo.ConflictError
	if err != nil {
		if !errors.As(err, &conflict) {
			return err
		}
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintln(out, red(fmt.Sprintf("rebase stopped at %s: conflicts in %d file(s)", conflict.Commit.Short(), len(conflict.Paths))))
		for _, p := range conflict.Paths {
			fmt.Fprintf(out, "  ! %s\n", p)
		}
		fmt.Fprintln(out, "fix conflicts, hist add the files, then hist rebase --continue (or --abort)")
		return err
	}

	switch {
	case report.AlreadyUpToDate:
		fmt.Fprintln(out, "already up to date")
	case report.FastForward:
		fmt.Fprintf(out, "fast-forwarded %s to %s\n", currentBranchName(r), report.NewHead.Short())
	default:
		fmt.Fprintf(out, "replayed %d commit(s); %s is now at %s\n", len(report.Replayed), currentBranchName(r), report.NewHead.Short())
	}
	return nil
}
