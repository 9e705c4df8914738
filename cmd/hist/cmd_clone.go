package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/remote"
)

func newCloneCmd() *cobra.Command {
	var origin string

	cmd := &cobra.Command{
		Use:   "clone <source> [destination]",
		Short: "Copy a repository into a new directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			dst := ""
			if len(args) > 1 {
				dst = args[1]
			} else {
				dst = filepath.Base(strings.TrimRight(src, "/"))
			}

			_, report, err := remote.Clone(src, dst, origin)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cloned into %s (%d object(s))\n", dst, report.Fetch.ObjectsWritten)
			if report.Branch == "" {
				fmt.Fprintln(out, "warning: source has no branches, cloned an empty repository")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&origin, "origin", "origin", "name for the source remote")

	return cmd
}
