package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/registrar/core"
)

func (cli *commandLine) newPurgeRecycleBinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-recycle-bin",
		Short: "Permanently delete expired recycle bin items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := cli.app.RecycleBin.PurgeExpired(context.Background(), core.NowFunc())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d expired item(s) purged\n", n)
			return nil
		},
	}
}
