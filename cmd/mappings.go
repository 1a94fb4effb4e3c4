package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recon-cli/internal/mapping"
	"github.com/sells-group/recon-cli/internal/model"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <session-id>",
	Short: "Generate candidate mappings for unmapped presentation values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		ms, err := env.Engine.Suggest(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "suggest")
		}
		formatMappings(os.Stdout, ms)
		return nil
	},
}

var mappingsCmd = &cobra.Command{
	Use:   "mappings <session-id>",
	Short: "List the candidate mappings of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		ms, err := env.Engine.Mappings(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "mappings")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, ms)
		}
		formatMappings(os.Stdout, ms)
		return nil
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <session-id> <mapping-id>",
	Short: "Confirm a candidate mapping",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args, "confirm")
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <session-id> <mapping-id>",
	Short: "Reject a candidate mapping",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args, "reject")
	},
}

var (
	editSource string
	editSheet  string
	editCell   string
	editFile   string
)

var editCmd = &cobra.Command{
	Use:   "edit <session-id> <mapping-id>",
	Short: "Point a mapping at a different source value or locator",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args, "edit")
	},
}

var addMappingCmd = &cobra.Command{
	Use:   "add-mapping <session-id> <presentation-value-id> <source-value-id>",
	Short: "Manually map a presentation value to a source value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := env.Engine.AddMapping(ctx, args[0], model.PairRef{
			PresentationValueID: args[1],
			SourceValueID:       args[2],
		})
		if err != nil {
			return eris.Wrap(err, "add mapping")
		}
		formatMappings(os.Stdout, []model.CandidateMapping{m})
		return nil
	},
}

// editFromFlags builds the edit the flags describe.
func editFromFlags(cmd *cobra.Command) mapping.Edit {
	var ed mapping.Edit
	if cmd.Flags().Changed("source") {
		ed.SourceValueID = &editSource
	}
	if editSheet != "" || editCell != "" || editFile != "" {
		ed.Locator = &model.Locator{File: editFile, Sheet: editSheet, Cell: editCell}
	}
	return ed
}

func transition(cmd *cobra.Command, args []string, action string) error {
	ctx := cmd.Context()

	env, err := initEngine(ctx, "store")
	if err != nil {
		return err
	}
	defer env.Close()

	sessionID, mappingID := args[0], args[1]
	var m model.CandidateMapping
	switch action {
	case "confirm":
		m, err = env.Engine.Confirm(ctx, sessionID, mappingID)
	case "reject":
		m, err = env.Engine.Reject(ctx, sessionID, mappingID)
	case "edit":
		m, err = env.Engine.Edit(ctx, sessionID, mappingID, editFromFlags(cmd))
	default:
		return eris.Errorf("unknown mapping action %q", action)
	}
	if err != nil {
		return eris.Wrapf(err, "%s mapping", action)
	}
	formatMappings(os.Stdout, []model.CandidateMapping{m})
	return nil
}

func init() {
	mappingsCmd.Flags().Bool("json", false, "print mappings as JSON")

	editCmd.Flags().StringVar(&editSource, "source", "", "new source value id")
	editCmd.Flags().StringVar(&editFile, "file", "", "source workbook file")
	editCmd.Flags().StringVar(&editSheet, "sheet", "", "source sheet")
	editCmd.Flags().StringVar(&editCell, "cell", "", "source cell")

	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(mappingsCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(addMappingCmd)
}
