package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/cadence/internal/app"
)

func newExportCommand(rt *runtime) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all definitions as YAML or iCalendar",
		Long: `Write all definitions as a YAML document (the import format) or as an
iCalendar file with one VTODO and RRULE per definition.`,
		Args: cobra.NoArgs,
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			if output == "" || output == "-" {
				return svc.Export(cmd.Context(), cmd.OutOrStdout(), format)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := svc.Export(cmd.Context(), f, format); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "yaml or ics")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Create or replace definitions from a YAML document",
		Long: `Create or replace definitions from a YAML document as written by
"cadence export". Records with an existing id replace that definition. Nothing
is saved when any record is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			defs, err := svc.Import(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d definition(s)\n", len(defs))
			return nil
		}),
	}
}
