package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recon-cli/internal/model"
)

var (
	updateRaw      string
	updateDataType string
	updateDesc     string
	updateCategory string
)

var updateValueCmd = &cobra.Command{
	Use:   "update-value <session-id> <presentation|source> <value-id>",
	Short: "Correct an extracted value",
	Long:  "Applies a user correction to one value and marks it stale until the next run.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		origin := model.Origin(args[1])
		if !origin.Valid() {
			return eris.Errorf("origin must be presentation or source, got %q", args[1])
		}
		patch := patchFromFlags(cmd)
		if patch.Empty() {
			return eris.New("nothing to update: set --raw, --type, --description or --category")
		}

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		v, err := env.Engine.UpdateValue(ctx, args[0], origin, args[2], patch)
		if err != nil {
			return eris.Wrap(err, "update value")
		}
		return writeJSON(os.Stdout, v)
	},
}

func patchFromFlags(cmd *cobra.Command) model.ValuePatch {
	var p model.ValuePatch
	if cmd.Flags().Changed("raw") {
		p.RawText = &updateRaw
	}
	if cmd.Flags().Changed("type") {
		dt := model.ParseDataType(updateDataType)
		p.DataType = &dt
	}
	if cmd.Flags().Changed("description") || cmd.Flags().Changed("category") {
		p.Context = &model.BusinessContext{Description: updateDesc, Category: updateCategory}
	}
	return p
}

func init() {
	updateValueCmd.Flags().StringVar(&updateRaw, "raw", "", "corrected raw text")
	updateValueCmd.Flags().StringVar(&updateDataType, "type", "", "corrected data type")
	updateValueCmd.Flags().StringVar(&updateDesc, "description", "", "corrected business description")
	updateValueCmd.Flags().StringVar(&updateCategory, "category", "", "corrected business category")
	rootCmd.AddCommand(updateValueCmd)
}
