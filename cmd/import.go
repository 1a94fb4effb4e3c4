package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/ingest"
)

var (
	importWorkbooks []string
	importSheets    []string
)

var importCmd = &cobra.Command{
	Use:   "import <session-file>",
	Short: "Load a session document (YAML or JSON) and its workbooks",
	Long:  "Creates or replaces the values of a session. Mappings that still resolve against the new values are kept; stale markers are cleared.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sess, err := ingest.LoadSession(args[0])
		if err != nil {
			return err
		}
		for _, path := range importWorkbooks {
			vals, err := ingest.ReadWorkbook(path, ingest.WorkbookOptions{Sheets: importSheets})
			if err != nil {
				return eris.Wrapf(err, "import workbook %s", path)
			}
			sess.Sources = append(sess.Sources, vals...)
		}

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		saved, err := env.Engine.Import(ctx, sess)
		if err != nil {
			return eris.Wrap(err, "import session")
		}

		zap.L().Info("import complete",
			zap.String("session_id", saved.ID),
			zap.Int("presentation_values", len(saved.Presentation)),
			zap.Int("source_values", len(saved.Sources)),
			zap.Int("mappings_kept", len(saved.Mappings)),
		)
		fmt.Fprintf(os.Stdout, "Imported session %s: %d presentation values, %d source values, %d mappings kept.\n",
			saved.ID, len(saved.Presentation), len(saved.Sources), len(saved.Mappings))
		return nil
	},
}

func init() {
	importCmd.Flags().StringSliceVar(&importWorkbooks, "workbook", nil, "additional workbook to harvest source values from (repeatable)")
	importCmd.Flags().StringSliceVar(&importSheets, "sheet", nil, "limit --workbook harvesting to these sheets")
	rootCmd.AddCommand(importCmd)
}
