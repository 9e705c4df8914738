package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/object"
	"github.com/odvcencio/hist/pkg/repo"
)

func newCommitCmd() *cobra.Command {
	var message string
	var messageFile string
	var author string
	var amend bool
	var sign bool
	var signKey string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record changes to the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if message != "" && messageFile != "" {
				return fmt.Errorf("-m and -F are mutually exclusive")
			}
			if messageFile != "" {
				data, err := os.ReadFile(messageFile)
				if err != nil {
					return fmt.Errorf("read message file: %w", err)
				}
				message = strings.TrimRight(string(data), "\n")
			}
			if message == "" && !amend {
				return fmt.Errorf("commit message is required (-m or -F)")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			var signer repo.CommitSigner
			if sign {
				keyPath := signKey
				if keyPath == "" {
					if cfg, cfgErr := r.ReadConfig(); cfgErr == nil {
						keyPath = cfg.User.SigningKey
					}
				}
				signer, _, err = newSSHCommitSigner(keyPath)
				if err != nil {
					return err
				}
			}

			var h object.Hash
			if amend {
				h, err = r.CommitAmend(message, signer)
			} else {
				h, err = r.CommitWithSigner(message, resolveAuthor(r, author), signer)
			}
			if err != nil {
				return err
			}

			if message == "" {
				// Amend without -m kept the old message; read it back for output.
				if c, readErr := r.Store.ReadCommit(h); readErr == nil {
					message = c.Message
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", currentBranchName(r), h.Short(), message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVarP(&messageFile, "file", "F", "", "read the commit message from a file")
	cmd.Flags().StringVar(&author, "author", "", "override author (default: config [user], then $USER)")
	cmd.Flags().BoolVar(&amend, "amend", false, "replace the HEAD commit instead of appending")
	cmd.Flags().BoolVar(&sign, "sign", false, "sign the commit with an SSH key")
	cmd.Flags().StringVar(&signKey, "key", "", "SSH private key to sign with (default: config signingkey, then ~/.ssh)")

	return cmd
}
