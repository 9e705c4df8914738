package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/object"
	"github.com/odvcencio/hist/pkg/repo"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int
	var pathFilter string

	cmd := &cobra.Command{
		Use:   "log [commit-ish]",
		Short: "Show commit history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			start := "HEAD"
			if len(args) > 0 {
				start = args[0]
			}
			startHash, err := r.Resolve(start)
			if err != nil {
				return fmt.Errorf("cannot resolve %q: %w", start, err)
			}

			var entries []repo.LogEntry
			if pathFilter != "" {
				entries, err = r.LogPath(pathFilter, startHash, limit)
			} else {
				entries, err = r.Log(startHash, limit)
			}
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no commits yet")
				return nil
			}

			headHash, _ := r.ResolveRef("HEAD")
			branchName := ""
			if head, headErr := r.Head(); headErr == nil && strings.HasPrefix(head, "refs/heads/") {
				branchName = strings.TrimPrefix(head, "refs/heads/")
			}

			yellow := color.New(color.FgYellow).SprintFunc()
			out := cmd.OutOrStdout()
			for _, entry := range entries {
				h := entry.Hash
				c := entry.Commit
				decoration := buildDecoration(h, headHash, branchName)

				if oneline {
					if decoration != "" {
						fmt.Fprintf(out, "%s %s %s\n", yellow(h.Short()), decoration, c.Message)
					} else {
						fmt.Fprintf(out, "%s %s\n", yellow(h.Short()), c.Message)
					}
					continue
				}

				if decoration != "" {
					fmt.Fprintf(out, "commit %s %s\n", yellow(string(h)), decoration)
				} else {
					fmt.Fprintf(out, "commit %s\n", yellow(string(h)))
				}
				if len(c.Parents) > 1 {
					shorts := make([]string, len(c.Parents))
					for i, p := range c.Parents {
						shorts[i] = p.Short()
					}
					fmt.Fprintf(out, "Merge: %s\n", strings.Join(shorts, " "))
				}
				fmt.Fprintf(out, "Author: %s\n", c.Author)
				fmt.Fprintf(out, "Date:   %s\n", time.Unix(c.Timestamp, 0).Format("2006-01-02 15:04:05"))
				fmt.Fprintln(out)
				fmt.Fprintf(out, "    %s\n", c.Message)
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of commits to show")
	cmd.Flags().StringVar(&pathFilter, "path", "", "only show commits touching this path")

	return cmd
}

// buildDecoration returns a string like "(HEAD -> main)" if the commit is
// the current HEAD, or "" otherwise.
func buildDecoration(commitHash, headHash object.Hash, branchName string) string {
	if commitHash != headHash {
		return ""
	}
	if branchName != "" {
		return "(HEAD -> " + branchName + ")"
	}
	return "(HEAD)"
}
