package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hist/pkg/repo"
)

func newConfigCmd() *cobra.Command {
	var name string
	var email string
	var signingKey string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or set repository configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			if name != "" || email != "" || signingKey != "" {
				cfg, err := r.ReadConfig()
				if err != nil {
					return err
				}
				if name == "" {
					name = cfg.User.Name
				}
				if email == "" {
					email = cfg.User.Email
				}
				if signingKey == "" {
					signingKey = cfg.User.SigningKey
				}
				return r.SetUser(name, email, signingKey)
			}

			cfg, err := r.ReadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user.name = %s\n", cfg.User.Name)
			fmt.Fprintf(out, "user.email = %s\n", cfg.User.Email)
			if cfg.User.SigningKey != "" {
				fmt.Fprintf(out, "user.signingkey = %s\n", cfg.User.SigningKey)
			}
			names := make([]string, 0, len(cfg.Remotes))
			for rn := range cfg.Remotes {
				names = append(names, rn)
			}
			sort.Strings(names)
			for _, rn := range names {
				fmt.Fprintf(out, "remote.%s.url = %s\n", rn, cfg.Remotes[rn].URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "set user.name")
	cmd.Flags().StringVar(&email, "email", "", "set user.email")
	cmd.Flags().StringVar(&signingKey, "signingkey", "", "set user.signingkey")

	return cmd
}
