package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newTagCmd() *cobra.Command {
	var annotate bool
	var message string
	var deleteName string
	var force bool

	cmd := &cobra.Command{
		Use:   "tag [name [commit-ish]]",
		Short: "List, create, or delete tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if deleteName != "" {
				if err := r.DeleteTag(deleteName); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted tag %s\n", deleteName)
				return nil
			}

			if len(args) == 0 {
				tags, err := r.ListTags()
				if err != nil {
					return err
				}
				for _, t := range tags {
					fmt.Fprintln(out, t)
				}
				return nil
			}

			name := args[0]
			rev := "HEAD"
			if len(args) > 1 {
				rev = args[1]
			}
			target, err := r.Resolve(rev)
			if err != nil {
				return fmt.Errorf("cannot resolve %q: %w", rev, err)
			}

			if annotate {
				if message == "" {
					return fmt.Errorf("annotated tags require a message (-m)")
				}
				if _, err := r.CreateAnnotatedTag(name, target, resolveAuthor(r, ""), message, force); err != nil {
					return err
				}
				return nil
			}
			return r.CreateTag(name, target, force)
		},
	}

	cmd.Flags().BoolVarP(&annotate, "annotate", "a", false, "create an annotated tag object")
	cmd.Flags().StringVarP(&message, "message", "m", "", "annotated tag message")
	cmd.Flags().StringVarP(&deleteName, "delete", "d", "", "delete a tag")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing tag")

	return cmd
}
