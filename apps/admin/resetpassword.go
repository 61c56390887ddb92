package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *commandLine) newResetPasswordCommand() *cobra.Command {
	var uname string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password",
		Long:  "Reset a user's password. The password will be prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			usr, err := cli.app.Users.GetByUsernameOrEmail(ctx, uname)
			if err != nil {
				return err
			}
			pwd, err := promptNewPassword(cmd.OutOrStdout(), usr.Name, usr.Username, usr.Email)
			if err != nil {
				return err
			}
			if err = cli.app.Users.ResetPassword(ctx, uname, pwd); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %q\n", usr.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&uname, "username", "u", "", "the user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
