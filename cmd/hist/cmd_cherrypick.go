package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newCherryPickCmd() *cobra.Command {
	var cont bool
	var abort bool

	cmd := &cobra.Command{
		Use:   "cherry-pick [<commit-ish>]",
		Short: "Apply the change introduced by an existing commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case cont:
				h, err := r.CherryPickContinue()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "[%s %s] cherry-pick completed\n", currentBranchName(r), h.Short())
				return nil

			case abort:
				if err := r.CherryPickAbort(); err != nil {
					return err
				}
				fmt.Fprintln(out, "cherry-pick aborted")
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("a commit is required")
			}
			h, err := r.CherryPick(args[0])
			if err != nil {
				var conflict *repo.ConflictError
				if errors.As(err, &conflict) {
					fmt.Fprintf(out, "cherry-pick stopped: conflicts in %d file(s)\n", len(conflict.Paths))
					for _, p := range conflict.Paths {
						fmt.Fprintf(out, "  ! %s\n", p)
					}
					fmt.Fprintln(out, "fix conflicts, hist add the files, then hist cherry-pick --continue (or --abort)")
				}
				return err
			}
			fmt.Fprintf(out, "[%s %s] cherry-picked\n", currentBranchName(r), h.Short())
			return nil
		},
	}

	cmd.Flags().BoolVar(&cont, "continue", false, "finish the pick after resolving conflicts")
	cmd.Flags().BoolVar(&abort, "abort", false, "abandon the pick and restore the pre-pick state")

	return cmd
}
