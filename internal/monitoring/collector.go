// Package monitoring summarizes reconciliation run health over a lookback
// window.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsCanceled  int     `json:"runs_canceled"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	RunsPartial   int     `json:"runs_partial"`
	FailRate      float64 `json:"fail_rate"`

	Comparisons     int                     `json:"comparisons"`
	Records         int                     `json:"records"`
	Categories      map[model.Category]int  `json:"categories"`
	RiskLevels      map[model.RiskLevel]int `json:"risk_levels"`
	AvgAccuracy     float64                 `json:"avg_accuracy"`
	AvgDurationSecs float64                 `json:"avg_duration_secs"`

	SessionID     string    `json:"session_id,omitempty"`
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run metrics from the store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// maxRuns bounds how many runs one snapshot reads.
const maxRuns = 10000

// Collect gathers a snapshot over the given lookback window, optionally
// limited to one session. A lookback of zero or less covers every run.
func (c *Collector) Collect(ctx context.Context, sessionID string, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		Categories:    make(map[model.Category]int),
		RiskLevels:    make(map[model.RiskLevel]int),
		SessionID:     sessionID,
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{SessionID: sessionID, Limit: maxRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	var totalDur time.Duration
	var timed int
	var accSum float64
	var scored int

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
		case model.RunStatusCanceled:
			snap.RunsCanceled++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsRunning++
		}
		if r.Partial {
			snap.RunsPartial++
		}
		snap.Comparisons += r.Comparisons
		if d := r.Duration(); d > 0 {
			totalDur += d
			timed++
		}
		if r.Summary == nil {
			continue
		}
		snap.Records += r.Summary.Total
		for cat, n := range r.Summary.Counts {
			snap.Categories[cat] += n
		}
		if r.Status == model.RunStatusCompleted {
			snap.RiskLevels[r.Summary.RiskLevel]++
			accSum += r.Summary.OverallAccuracy
			scored++
		}
	}

	finished := snap.RunsCompleted + snap.RunsCanceled + snap.RunsFailed
	if finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if timed > 0 {
		snap.AvgDurationSecs = totalDur.Seconds() / float64(timed)
	}
	if scored > 0 {
		snap.AvgAccuracy = accSum / float64(scored)
	}
	return snap, nil
}
