package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/store"
)

// mockRuns implements RunLister for testing.
type mockRuns struct {
	runs    []model.Run
	listErr error
	filter  store.RunFilter
}

func (m *mockRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	m.filter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if filter.SessionID != "" && r.SessionID != filter.SessionID {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestCollector(runs RunLister) *Collector {
	c := NewCollector(runs)
	c.now = func() time.Time { return fixedNow }
	return c
}

func finished(r model.Run, after time.Duration) model.Run {
	done := r.StartedAt.Add(after)
	r.CompletedAt = &done
	return r
}

func summary(total, matched, mismatched int, risk model.RiskLevel) *model.SessionSummary {
	return &model.SessionSummary{
		Total:           total,
		Counts:          map[model.Category]int{model.CategoryMatched: matched, model.CategoryMismatched: mismatched},
		OverallAccuracy: float64(matched) / float64(total) * 100,
		RiskLevel:       risk,
	}
}

func TestCollector_EmptyStore(t *testing.T) {
	c := newTestCollector(&mockRuns{})

	snap, err := c.Collect(context.Background(), "", 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 0.0, snap.AvgAccuracy)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_RunMetrics(t *testing.T) {
	st := &mockRuns{
		runs: []model.Run{
			finished(model.Run{ID: "1", SessionID: "deck", Status: model.RunStatusCompleted, Comparisons: 4,
				StartedAt: fixedNow.Add(-1 * time.Hour), Summary: summary(4, 4, 0, model.RiskLow)}, 2*time.Second),
			finished(model.Run{ID: "2", SessionID: "deck", Status: model.RunStatusCompleted, Comparisons: 4,
				StartedAt: fixedNow.Add(-2 * time.Hour), Summary: summary(4, 2, 2, model.RiskHigh)}, 4*time.Second),
			finished(model.Run{ID: "3", SessionID: "deck", Status: model.RunStatusCanceled, Partial: true, Comparisons: 1,
				StartedAt: fixedNow.Add(-3 * time.Hour), Summary: summary(1, 1, 0, model.RiskLow)}, 3*time.Second),
			finished(model.Run{ID: "4", SessionID: "memo", Status: model.RunStatusFailed,
				StartedAt: fixedNow.Add(-3 * time.Hour)}, 3*time.Second),
			{ID: "5", SessionID: "memo", Status: model.RunStatusRunning, StartedAt: fixedNow.Add(-time.Minute)},
			// Outside lookback window.
			finished(model.Run{ID: "6", SessionID: "deck", Status: model.RunStatusFailed,
				StartedAt: fixedNow.Add(-48 * time.Hour)}, time.Second),
		},
	}

	snap, err := newTestCollector(st).Collect(context.Background(), "", 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsCompleted)
	assert.Equal(t, 1, snap.RunsCanceled)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 1, snap.RunsPartial)
	assert.InDelta(t, 0.25, snap.FailRate, 0.001) // 1 failed / 4 finished
	assert.Equal(t, 9, snap.Comparisons)
	assert.Equal(t, 9, snap.Records)
	assert.Equal(t, 7, snap.Categories[model.CategoryMatched])
	assert.Equal(t, 2, snap.Categories[model.CategoryMismatched])
	assert.Equal(t, 1, snap.RiskLevels[model.RiskHigh])
	assert.Equal(t, 1, snap.RiskLevels[model.RiskLow], "partial runs do not count toward risk")
	assert.InDelta(t, 75.0, snap.AvgAccuracy, 0.001)
	assert.InDelta(t, 3.0, snap.AvgDurationSecs, 0.001)
}

func TestCollector_SessionFilterAndNoLookback(t *testing.T) {
	st := &mockRuns{
		runs: []model.Run{
			{ID: "1", SessionID: "deck", Status: model.RunStatusCompleted, StartedAt: fixedNow.Add(-90 * 24 * time.Hour)},
			{ID: "2", SessionID: "memo", Status: model.RunStatusCompleted, StartedAt: fixedNow},
		},
	}

	snap, err := newTestCollector(st).Collect(context.Background(), "deck", 0)
	require.NoError(t, err)
	assert.Equal(t, "deck", st.filter.SessionID)
	assert.Equal(t, 1, snap.RunsTotal)
	assert.Equal(t, "deck", snap.SessionID)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	st := &mockRuns{
		runs: []model.Run{
			{ID: "1", Status: model.RunStatusRunning, StartedAt: fixedNow.Add(-1 * time.Hour)},
		},
	}

	snap, err := newTestCollector(st).Collect(context.Background(), "", 24)
	require.NoError(t, err)

	// No finished runs, so failure rate should be 0.
	assert.Equal(t, 0.0, snap.FailRate)
}

func TestCollector_ListError(t *testing.T) {
	st := &mockRuns{listErr: errors.New("db down")}

	_, err := newTestCollector(st).Collect(context.Background(), "", 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
