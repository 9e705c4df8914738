package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/object"
	"github.com/odvcencio/hist/pkg/repo"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <object-ish>",
		Short: "Pretty-print an object by digest, ref, or revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			h, err := r.Resolve(args[0])
			if err != nil {
				return fmt.Errorf("cannot resolve %q: %w", args[0], err)
			}

			objType, data, err := r.Store.Read(h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch objType {
			case object.TypeBlob:
				blob, err := object.UnmarshalBlob(data)
				if err != nil {
					return err
				}
				out.Write(blob.Data)

			case object.TypeTree:
				tree, err := object.UnmarshalTree(data)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "tree %s\n\n", h)
				for _, e := range tree.Entries {
					if e.IsDir {
						fmt.Fprintf(out, "%s tree %s %s/\n", e.Mode, e.SubtreeHash.Short(), e.Name)
					} else {
						fmt.Fprintf(out, "%s blob %s %s\n", e.Mode, e.BlobHash.Short(), e.Name)
					}
				}

			case object.TypeCommit:
				c, err := object.UnmarshalCommit(data)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "commit %s\n", h)
				fmt.Fprintf(out, "tree   %s\n", c.TreeHash)
				for _, p := range c.Parents {
					fmt.Fprintf(out, "parent %s\n", p)
				}
				fmt.Fprintf(out, "Author: %s\n", c.Author)
				fmt.Fprintf(out, "Date:   %s\n", time.Unix(c.Timestamp, 0).Format("2006-01-02 15:04:05"))
				if c.Signature != "" {
					fmt.Fprintln(out, "Signed: yes")
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "    %s\n", c.Message)

			case object.TypeTag:
				t, err := object.UnmarshalTag(data)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "tag %s\n", h)
				fmt.Fprintf(out, "target %s\n", t.TargetHash)
				fmt.Fprintf(out, "Tagger: %s\n", t.Tagger)
				fmt.Fprintf(out, "Date:   %s\n", time.Unix(t.Timestamp, 0).Format("2006-01-02 15:04:05"))
				fmt.Fprintln(out)
				fmt.Fprintf(out, "    %s\n", t.Message)

			default:
				return fmt.Errorf("unknown object type %q", objType)
			}
			return nil
		},
	}
}
