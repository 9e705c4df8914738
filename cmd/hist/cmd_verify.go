package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [commit-ish]",
		Short: "Check repository integrity, or a commit's SSH signature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				h, err := r.Resolve(args[0])
				if err != nil {
					return fmt.Errorf("cannot resolve %q: %w", args[0], err)
				}
				fingerprint, err := r.VerifyCommit(h)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "good signature on %s\n", h.Short())
				fmt.Fprintf(out, "key: %s\n", fingerprint)
				return nil
			}

			report, err := r.Fsck()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%d object(s), %d reachable, %d unreachable\n", report.Objects, report.Reachable, report.Unreachable)
			for _, h := range report.Corrupt {
				fmt.Fprintf(out, "corrupt: %s\n", h)
			}
			for _, ref := range report.DanglingRefs {
				fmt.Fprintf(out, "dangling ref: %s\n", ref)
			}
			if len(report.Corrupt) > 0 || len(report.DanglingRefs) > 0 {
				return fmt.Errorf("verify found %d corrupt object(s) and %d dangling ref(s)", len(report.Corrupt), len(report.DanglingRefs))
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}
}
