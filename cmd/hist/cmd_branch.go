package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newBranchCmd() *cobra.Command {
	var deleteName string
	var forceDeleteName string

	cmd := &cobra.Command{
		Use:   "branch [name [start-point]]",
		Short: "List, create, or delete branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if deleteName != "" || forceDeleteName != "" {
				name, force := deleteName, false
				if forceDeleteName != "" {
					name, force = forceDeleteName, true
				}
				if err := r.DeleteBranch(name, force); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted branch %s\n", name)
				return nil
			}

			if len(args) == 0 {
				branches, err := r.ListBranches()
				if err != nil {
					return err
				}
				current, _ := r.CurrentBranch()
				green := color.New(color.FgGreen).SprintFunc()
				for _, b := range branches {
					if b == current {
						fmt.Fprintf(out, "* %s\n", green(b))
					} else {
						fmt.Fprintf(out, "  %s\n", b)
					}
				}
				return nil
			}

			start := "HEAD"
			if len(args) > 1 {
				start = args[1]
			}
			target, err := r.Resolve(start)
			if err != nil {
				return fmt.Errorf("cannot resolve %q: %w", start, err)
			}
			return r.CreateBranch(args[0], target)
		},
	}

	cmd.Flags().StringVarP(&deleteName, "delete", "d", "", "delete a fully merged branch")
	cmd.Flags().StringVarP(&forceDeleteName, "force-delete", "D", "", "delete a branch regardless of merge status")

	return cmd
}
