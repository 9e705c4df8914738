package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newCheckoutCmd() *cobra.Command {
	var create string

	cmd := &cobra.Command{
		Use:   "checkout [<branch> | <commit-ish>]",
		Short: "Check out a branch, or detach HEAD at a commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if create != "" {
				start := ""
				if len(args) > 0 {
					start = args[0]
				}
				if err := r.SwitchCreate(create, start); err != nil {
					return err
				}
				fmt.Fprintf(out, "switched to new branch %s\n", create)
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("a branch or commit is required")
			}
			target := args[0]

			// A branch name checks out symbolically; anything else that
			// resolves to a commit detaches HEAD there.
			switch err := r.Switch(target); {
			case err == nil:
				fmt.Fprintf(out, "switched to branch %s\n", target)
				return nil
			case !errors.Is(err, repo.ErrBranchNotFound):
				return err
			}
			if err := r.SwitchDetach(target); err != nil {
				return err
			}
			h, _ := r.ResolveRef("HEAD")
			fmt.Fprintf(out, "HEAD is now at %s (detached)\n", h.Short())
			return nil
		},
	}

	cmd.Flags().StringVarP(&create, "branch", "b", "", "create a new branch and check it out")

	return cmd
}
