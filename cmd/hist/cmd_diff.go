package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/diff"
	"github.com/odvcencio/hist/pkg/repo"
)

func newDiffCmd() *cobra.Command {
	var staged bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "diff [<commit-ish> [<commit-ish>]]",
		Short: "Show changes between trees, the index, and the working tree",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			var changes []diff.Change
			var load diff.BlobLoader

			switch {
			case staged:
				if len(args) > 0 {
					return fmt.Errorf("--staged takes no revision arguments")
				}
				changes, load, err = r.DiffStaged()
			case len(args) == 0:
				changes, load, err = r.DiffWorktree()
			case len(args) == 1:
				h, resolveErr := r.Resolve(args[0])
				if resolveErr != nil {
					return fmt.Errorf("cannot resolve %q: %w", args[0], resolveErr)
				}
				changes, load, err = r.DiffCommitWorktree(h)
			default:
				a, resolveErr := r.Resolve(args[0])
				if resolveErr != nil {
					return fmt.Errorf("cannot resolve %q: %w", args[0], resolveErr)
				}
				b, resolveErr := r.Resolve(args[1])
				if resolveErr != nil {
					return fmt.Errorf("cannot resolve %q: %w", args[1], resolveErr)
				}
				changes, load, err = r.DiffCommits(a, b)
			}
			if err != nil {
				return err
			}

			text, err := diff.FormatUnified(changes, load)
			if err != nil {
				return err
			}
			if noColor {
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), colorizeDiff(text))
			return nil
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", false, "compare the index against HEAD")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

// colorizeDiff paints unified diff lines: additions green, deletions
// red, hunk headers cyan.
func colorizeDiff(text string) string {
	if text == "" {
		return ""
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "@@"):
			lines[i] = cyan(line)
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			lines[i] = green(line)
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			lines[i] = red(line)
		}
	}
	return strings.Join(lines, "\n")
}
