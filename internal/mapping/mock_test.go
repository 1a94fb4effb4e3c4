package mapping

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/oracle"
)

type mockScorer struct {
	mock.Mock
}

func (m *mockScorer) Score(ctx context.Context, p oracle.Subject, s []oracle.Subject) ([]float64, error) {
	args := m.Called(ctx, p, s)
	out, _ := args.Get(0).([]float64)
	return out, args.Error(1)
}

func value(id, raw string, dt model.DataType, desc, category string) model.ExtractedValue {
	return model.ExtractedValue{
		ID:       id,
		RawText:  raw,
		DataType: dt,
		Context:  model.BusinessContext{Description: desc, Category: category},
	}
}
