package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/monitoring"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSESSION\tMODE\tSTATUS\tACCURACY\tRISK\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t----\t------\t--------\t----\t-------\t--------")

	for _, r := range runs {
		accuracy, risk := "-", "-"
		if r.Summary != nil {
			accuracy = fmt.Sprintf("%.1f%%", r.Summary.OverallAccuracy)
			risk = string(r.Summary.RiskLevel)
		}
		status := string(r.Status)
		if r.Partial {
			status += " (partial)"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			truncate(r.SessionID, 30),
			r.Mode,
			status,
			accuracy,
			risk,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Duration().Round(time.Millisecond).String(),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.RunsTotal)
	_, _ = fmt.Fprintf(w, "Completed:\t%d\n", s.RunsCompleted)
	_, _ = fmt.Fprintf(w, "Canceled:\t%d\n", s.RunsCanceled)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.RunsFailed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.RunsRunning)
	_, _ = fmt.Fprintf(w, "Partial:\t%d\n", s.RunsPartial)
	_, _ = fmt.Fprintf(w, "Fail rate:\t%.1f%%\n", s.FailRate*100)
	_, _ = fmt.Fprintf(w, "Comparisons:\t%d\n", s.Comparisons)
	for _, c := range model.AllCategories() {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", c, s.Categories[c])
	}
	if s.AvgAccuracy > 0 {
		_, _ = fmt.Fprintf(w, "Avg accuracy:\t%.1f%%\n", s.AvgAccuracy)
	}
	if s.AvgDurationSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurationSecs)
	}
	_ = w.Flush()
}

// formatRecords writes one line per reconciliation record.
func formatRecords(out io.Writer, recs []model.ReconciliationRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEQ\tPRESENTATION\tSOURCE\tCATEGORY\tKIND\tCONF\tRATIONALE")
	_, _ = fmt.Fprintln(w, "---\t------------\t------\t--------\t----\t----\t---------")
	for _, r := range recs {
		src := "-"
		if r.SourceValueID != nil {
			src = *r.SourceValueID
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			r.Seq,
			r.PresentationValueID,
			src,
			r.Category,
			r.Discrepancy.Kind,
			r.VerdictConfidence,
			truncate(r.Rationale, 80),
		)
	}
	_ = w.Flush()
}

// formatSummary writes the counts, accuracy, risk and recommendations.
func formatSummary(out io.Writer, s model.SessionSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "\nRun:\t%s\n", s.RunID)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", s.Total)
	for _, c := range model.AllCategories() {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", c, s.Count(c))
	}
	_, _ = fmt.Fprintf(w, "Accuracy:\t%.2f%%\n", s.OverallAccuracy)
	_, _ = fmt.Fprintf(w, "Coverage:\t%.1f%%\n", s.Coverage*100)
	_, _ = fmt.Fprintf(w, "Risk:\t%s\n", s.RiskLevel)
	_ = w.Flush()

	if len(s.Recommendations) > 0 {
		_, _ = fmt.Fprintln(out, "\nRecommendations:")
		for _, r := range s.Recommendations {
			_, _ = fmt.Fprintf(out, "  - %s\n", r)
		}
	}
}

// formatMappings writes candidate mappings with their disposition.
func formatMappings(out io.Writer, ms []model.CandidateMapping) {
	if len(ms) == 0 {
		_, _ = fmt.Fprintln(out, "No mappings.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPRESENTATION\tSOURCE\tCONF\tSTATE\tRATIONALE")
	_, _ = fmt.Fprintln(w, "--\t------------\t------\t----\t-----\t---------")
	for _, m := range ms {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			m.ID,
			m.PresentationValueID,
			m.SourceValueID,
			m.SimilarityConfidence,
			m.Disposition,
			truncate(m.Rationale, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
