package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/trezcool/registrar/storage/database"
)

var gooseRunFunc = database.Migrate // mockable

func (cli *commandLine) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a database migration command",
		Long: `Run a goose command on the embedded migrations.

Commands:
  up                   Migrate the DB to the most recent version available
  up-by-one            Migrate the DB up by 1
  up-to VERSION        Migrate the DB to a specific VERSION
  down                 Roll back the version by 1
  down-to VERSION      Roll back to a specific VERSION
  redo                 Re-run the latest migration
  reset                Roll back all migrations
  status               Dump the migration status for the current DB
  version              Print the current version of the database
  create NAME [sql|go] Create a new migration file
  fix                  Apply sequential ordering to migrations`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cli.db == nil {
				return errors.New("migrations need a postgres database")
			}
			return gooseRunFunc(cli.db, args[0], args[1:]...)
		},
	}
}
