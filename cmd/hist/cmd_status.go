package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show working tree status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			entries, err := r.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			// Determine current branch and whether commits exist.
			branch := "main"
			noCommits := true

			head, err := r.Head()
			if err == nil {
				if strings.HasPrefix(head, "refs/heads/") {
					branch = strings.TrimPrefix(head, "refs/heads/")
				} else {
					branch = "detached at " + head[:8]
				}
				if _, resolveErr := r.ResolveRef("HEAD"); resolveErr == nil {
					noCommits = false
				}
			}

			if noCommits {
				fmt.Fprintf(out, "on %s (no commits yet)\n", branch)
			} else {
				fmt.Fprintf(out, "on %s\n", branch)
			}

			if op, err := r.CurrentOperation(); err == nil && op != repo.OpNone {
				fmt.Fprintf(out, "%s in progress (use \"hist %s --continue\" or \"hist %s --abort\")\n", op, op, op)
			}

			red := color.New(color.FgRed).SprintfFunc()
			green := color.New(color.FgGreen).SprintfFunc()
			yellow := color.New(color.FgYellow).SprintfFunc()

			var conflicts, staged, unstaged, untracked []string

			for _, e := range entries {
				path := filepath.ToSlash(e.Path)

				if e.IndexStatus == repo.StatusConflict || e.WorkStatus == repo.StatusConflict {
					conflicts = append(conflicts, red("  ! %s", path))
					continue
				}

				// Staged: changes in index relative to HEAD.
				switch e.IndexStatus {
				case repo.StatusNew:
					staged = append(staged, green("  + %s", path))
				case repo.StatusModified:
					staged = append(staged, green("  ~ %s", path))
				case repo.StatusRenamed:
					staged = append(staged, green("  R %s -> %s", filepath.ToSlash(e.RenamedFrom), path))
				case repo.StatusDeleted:
					staged = append(staged, green("  - %s", path))
				}

				// Unstaged: changes in working tree relative to index.
				switch e.WorkStatus {
				case repo.StatusDirty:
					unstaged = append(unstaged, yellow("  ~ %s", path))
				case repo.StatusRenamed:
					unstaged = append(unstaged, yellow("  R %s -> %s", filepath.ToSlash(e.RenamedFrom), path))
				case repo.StatusDeleted:
					if e.IndexStatus != repo.StatusUntracked {
						unstaged = append(unstaged, yellow("  - %s", path))
					}
				}

				if e.IndexStatus == repo.StatusUntracked && e.WorkStatus != repo.StatusRenamed {
					untracked = append(untracked, "  "+path)
				}
			}

			printSection := func(title string, lines []string) {
				if len(lines) == 0 {
					return
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, title+":")
				for _, s := range lines {
					fmt.Fprintln(out, s)
				}
			}

			printSection("conflicts", conflicts)
			printSection("staged", staged)
			printSection("unstaged", unstaged)
			printSection("untracked", untracked)

			return nil
		},
	}
}
