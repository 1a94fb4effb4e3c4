package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/recon-cli/internal/mapping"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/reconcile"
	"github.com/sells-group/recon-cli/internal/store"
)

type mockService struct{ mock.Mock }

func (m *mockService) Session(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *mockService) Sessions(ctx context.Context) ([]store.SessionInfo, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]store.SessionInfo)
	return out, args.Error(1)
}

func (m *mockService) Import(ctx context.Context, in *model.Session) (*model.Session, error) {
	args := m.Called(ctx, in)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *mockService) Suggest(ctx context.Context, sessionID string) ([]model.CandidateMapping, error) {
	args := m.Called(ctx, sessionID)
	out, _ := args.Get(0).([]model.CandidateMapping)
	return out, args.Error(1)
}

func (m *mockService) Mappings(ctx context.Context, sessionID string) ([]model.CandidateMapping, error) {
	args := m.Called(ctx, sessionID)
	out, _ := args.Get(0).([]model.CandidateMapping)
	return out, args.Error(1)
}

func (m *mockService) Confirm(ctx context.Context, sessionID, mappingID string) (model.CandidateMapping, error) {
	args := m.Called(ctx, sessionID, mappingID)
	return args.Get(0).(model.CandidateMapping), args.Error(1)
}

func (m *mockService) Reject(ctx context.Context, sessionID, mappingID string) (model.CandidateMapping, error) {
	args := m.Called(ctx, sessionID, mappingID)
	return args.Get(0).(model.CandidateMapping), args.Error(1)
}

func (m *mockService) Edit(ctx context.Context, sessionID, mappingID string, ed mapping.Edit) (model.CandidateMapping, error) {
	args := m.Called(ctx, sessionID, mappingID, ed)
	return args.Get(0).(model.CandidateMapping), args.Error(1)
}

func (m *mockService) AddMapping(ctx context.Context, sessionID string, ref model.PairRef) (model.CandidateMapping, error) {
	args := m.Called(ctx, sessionID, ref)
	return args.Get(0).(model.CandidateMapping), args.Error(1)
}

func (m *mockService) UpdateValue(ctx context.Context, sessionID string, origin model.Origin, valueID string, patch model.ValuePatch) (model.ExtractedValue, error) {
	args := m.Called(ctx, sessionID, origin, valueID, patch)
	return args.Get(0).(model.ExtractedValue), args.Error(1)
}

func (m *mockService) Reconcile(ctx context.Context, sessionID string, opts reconcile.Options) (*reconcile.Outcome, error) {
	args := m.Called(ctx, sessionID, opts)
	out, _ := args.Get(0).(*reconcile.Outcome)
	return out, args.Error(1)
}

func (m *mockService) Summary(ctx context.Context, sessionID string) (model.SessionSummary, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(model.SessionSummary), args.Error(1)
}

func (m *mockService) Runs(ctx context.Context, sessionID string, limit int) ([]model.Run, error) {
	args := m.Called(ctx, sessionID, limit)
	out, _ := args.Get(0).([]model.Run)
	return out, args.Error(1)
}

func (m *mockService) Run(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	out, _ := args.Get(0).(*model.Run)
	return out, args.Error(1)
}

func (m *mockService) Records(ctx context.Context, runID string) ([]model.ReconciliationRecord, error) {
	args := m.Called(ctx, runID)
	out, _ := args.Get(0).([]model.ReconciliationRecord)
	return out, args.Error(1)
}

func (m *mockService) Status(ctx context.Context, sessionID string) (*reconcile.Status, error) {
	args := m.Called(ctx, sessionID)
	out, _ := args.Get(0).(*reconcile.Status)
	return out, args.Error(1)
}

// fakeRuns implements monitoring.RunLister.
type fakeRuns struct{ runs []model.Run }

func (f *fakeRuns) ListRuns(_ context.Context, _ store.RunFilter) ([]model.Run, error) {
	return f.runs, nil
}
