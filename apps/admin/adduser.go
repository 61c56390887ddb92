package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *commandLine) newAddUserCommand() *cobra.Command {
	var (
		name, uname, email string
		owner              bool
	)

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create or update an active admin user",
		Long: `Create an active admin user, or update the matching one (by username, else email).
The password will be prompted next.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if uname == "" && email == "" {
				return errors.New("one of --username or --email is required")
			}
			pwd, err := promptNewPassword(cmd.OutOrStdout(), name, uname, email)
			if err != nil {
				return err
			}
			usr, err := cli.app.Users.AddUser(context.Background(), name, uname, email, pwd, owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %q saved (roles: %v)\n", usr.Username, usr.Roles)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "the user's full name")
	cmd.Flags().StringVarP(&uname, "username", "u", "", "the user's username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "the user's email")
	cmd.Flags().BoolVar(&owner, "owner", false, "grant every role")
	return cmd
}
