package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/registrar/core/student"
)

func (cli *commandLine) newImportStudentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import-students FILE",
		Short: "Enroll students from a CSV or XLSX file into the active academic year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "opening import file")
			}
			defer f.Close()

			rows, err := student.ParseImportFile(f, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			res := cli.app.Students.Import(context.Background(), rows, cli.app.Validate, cli.app.Translator)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported: %d, skipped: %d, failed: %d\n", res.Success, res.Skipped, len(res.Errors))
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  row %d: %s\n", e.Row, e.Error)
			}
			return nil
		},
	}
}
