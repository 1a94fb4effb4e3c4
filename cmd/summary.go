package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <session-id>",
	Short: "Show the summary of the latest run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Engine.Summary(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "summary")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, sum)
		}
		formatSummary(os.Stdout, sum)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show extraction state, latest run and stale values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.Engine.Status(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "status")
		}
		return writeJSON(os.Stdout, st)
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		infos, err := env.Engine.Sessions(ctx)
		if err != nil {
			return eris.Wrap(err, "sessions")
		}
		return writeJSON(os.Stdout, infos)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEngine(cmd.Context(), "store")
		if err != nil {
			return err
		}
		env.Close()
		return nil
	},
}

func init() {
	summaryCmd.Flags().Bool("json", false, "print the summary as JSON")
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(migrateCmd)
}
