package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newSwitchCmd() *cobra.Command {
	var create string
	var detach bool

	cmd := &cobra.Command{
		Use:   "switch [<branch> | -c <new-branch> [start-point] | --detach <commit-ish>]",
		Short: "Switch branches or detach HEAD at a commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case create != "":
				start := ""
				if len(args) > 0 {
					start = args[0]
				}
				if err := r.SwitchCreate(create, start); err != nil {
					return err
				}
				fmt.Fprintf(out, "switched to new branch %s\n", create)

			case detach:
				if len(args) != 1 {
					return fmt.Errorf("--detach requires a commit")
				}
				if err := r.SwitchDetach(args[0]); err != nil {
					return err
				}
				h, _ := r.ResolveRef("HEAD")
				fmt.Fprintf(out, "HEAD is now at %s\n", h.Short())

			default:
				if len(args) != 1 {
					return fmt.Errorf("a branch name is required")
				}
				if err := r.Switch(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "switched to branch %s\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&create, "create", "c", "", "create a new branch and switch to it")
	cmd.Flags().BoolVar(&detach, "detach", false, "detach HEAD at the given commit")

	return cmd
}
