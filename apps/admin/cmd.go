package main

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errEmptyPassword    = errors.New("password cannot be empty")
	errPasswordMismatch = errors.New("passwords do not match")
)

type commandLine struct {
	db  *sqlx.DB
	app *container.Container
}

func newRootCommand(cli *commandLine) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Registrar administration commands",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		cli.newMigrateCommand(),
		cli.newAddUserCommand(),
		cli.newResetPasswordCommand(),
		cli.newPurgeRecycleBinCommand(),
		cli.newImportStudentsCommand(),
	)
	return rootCmd
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

// promptNewPassword asks for a password twice and applies the password policy.
func promptNewPassword(w io.Writer, name, uname, email string) (string, error) {
	pwd, err := promptPassword(w, "Enter password:")
	if err != nil {
		return "", err
	}
	confirm, err := promptPassword(w, "Confirm password:")
	if err != nil {
		return "", err
	}
	if pwd != confirm {
		return "", errPasswordMismatch
	}
	if tag := user.CheckPassword(pwd, name, uname, email); tag != "" {
		return "", errors.New(user.PasswordRuleText(tag))
	}
	return pwd, nil
}
