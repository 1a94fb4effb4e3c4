package reconcile

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/oracle"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Compare(ctx context.Context, p, s oracle.Subject) (oracle.Verdict, error) {
	args := m.Called(ctx, p, s)
	return args.Get(0).(oracle.Verdict), args.Error(1)
}

func (m *mockOracle) CompareBatch(ctx context.Context, p, s []oracle.Subject) ([]oracle.Match, error) {
	args := m.Called(ctx, p, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]oracle.Match), args.Error(1)
}

// funcOracle lets a test script oracle behavior inline.
type funcOracle struct {
	compare func(ctx context.Context, p, s oracle.Subject) (oracle.Verdict, error)
	batch   func(ctx context.Context, p, s []oracle.Subject) ([]oracle.Match, error)
}

func (f *funcOracle) Compare(ctx context.Context, p, s oracle.Subject) (oracle.Verdict, error) {
	return f.compare(ctx, p, s)
}

func (f *funcOracle) CompareBatch(ctx context.Context, p, s []oracle.Subject) ([]oracle.Match, error) {
	return f.batch(ctx, p, s)
}

func pres(id, raw string, dt model.DataType) model.ExtractedValue {
	return model.ExtractedValue{ID: id, Origin: model.OriginPresentation, RawText: raw, DataType: dt}
}

func src(id, raw string, dt model.DataType) model.ExtractedValue {
	return model.ExtractedValue{ID: id, Origin: model.OriginSource, RawText: raw, DataType: dt}
}

func pair(p, s model.ExtractedValue) model.Pair {
	return model.Pair{Presentation: p, Source: &s}
}

func equivalent(conf float64) oracle.Verdict {
	return oracle.Verdict{Equivalent: true, Confidence: conf, Rationale: "same fact"}
}

func different() oracle.Verdict {
	return oracle.Verdict{Equivalent: false, Confidence: 0.9, Rationale: "different fact"}
}
