package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/reconcile"
)

var (
	reconcileMode  string
	reconcilePairs []string
	reconcileJSON  bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <session-id>",
	Short: "Run a reconciliation over a session",
	Long:  "Mapped mode reconciles confirmed and edited mappings (or the --pair list). Direct mode checks every presentation value against every source value. Interrupting the run keeps the batches already completed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := reconcile.Options{Mode: model.Mode(reconcileMode)}
		pairs, err := parsePairs(reconcilePairs)
		if err != nil {
			return err
		}
		opts.Pairs = pairs

		env, err := initEngine(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		out, runErr := env.Engine.Reconcile(ctx, args[0], opts)
		if out == nil {
			return eris.Wrap(runErr, "reconcile")
		}
		if runErr != nil {
			zap.L().Warn("run ended early, partial results saved",
				zap.String("run_id", out.Run.ID),
				zap.Error(runErr),
			)
		}

		if reconcileJSON {
			if err := writeJSON(os.Stdout, out); err != nil {
				return err
			}
		} else {
			formatRecords(os.Stdout, out.Records)
			formatSummary(os.Stdout, out.Summary)
		}
		if runErr != nil {
			return eris.Wrap(runErr, "reconcile")
		}
		return nil
	},
}

// parsePairs reads "presentationID=sourceID" pairs.
func parsePairs(raw []string) ([]model.PairRef, error) {
	out := make([]model.PairRef, 0, len(raw))
	for _, p := range raw {
		pres, src, ok := strings.Cut(p, "=")
		if !ok || pres == "" || src == "" {
			return nil, eris.Errorf("invalid pair %q: want presentation-id=source-id", p)
		}
		out = append(out, model.PairRef{PresentationValueID: pres, SourceValueID: src})
	}
	return out, nil
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileMode, "mode", string(model.ModeMapped), "reconciliation mode (mapped, direct)")
	reconcileCmd.Flags().StringSliceVar(&reconcilePairs, "pair", nil, "explicit presentation-id=source-id pair for mapped mode (repeatable)")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "print the run outcome as JSON")
	rootCmd.AddCommand(reconcileCmd)
}
