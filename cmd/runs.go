package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/monitoring"
	"github.com/sells-group/recon-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect reconciliation run history",
	Long:  "Commands for listing runs, viewing one run, its records, and aggregate statistics.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciliation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		session, _ := cmd.Flags().GetString("session")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := env.Store.ListRuns(ctx, store.RunFilter{
			SessionID: session,
			Status:    model.RunStatus(status),
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Engine.Run(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeJSON(os.Stdout, run)
	},
}

// -- runs records --

var runsRecordsCmd = &cobra.Command{
	Use:   "records <run-id>",
	Short: "List the reconciliation records of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Engine.Records(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs records")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, recs)
		}
		formatRecords(os.Stdout, recs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		session, _ := cmd.Flags().GetString("session")
		since, _ := cmd.Flags().GetDuration("since")

		snap, err := monitoring.NewCollector(env.Store).Collect(ctx, session, int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("session", "", "filter by session id")
	runsListCmd.Flags().String("status", "", "filter by run status (running, completed, canceled, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsRecordsCmd.Flags().Bool("json", false, "print records as JSON")

	runsStatsCmd.Flags().String("session", "", "limit stats to one session")
	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (e.g. 24h, 168h; 0 for all runs)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsRecordsCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}
