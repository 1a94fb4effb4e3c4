package oracle

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
	"github.com/sells-group/recon-cli/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 200, OutputTokens: 40},
	}
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Compare(ctx context.Context, p, s Subject) (Verdict, error) {
	args := m.Called(ctx, p, s)
	return args.Get(0).(Verdict), args.Error(1)
}

func (m *mockOracle) CompareBatch(ctx context.Context, p, s []Subject) ([]Match, error) {
	args := m.Called(ctx, p, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Match), args.Error(1)
}

func subject(id, raw string, dt model.DataType, desc, category string) Subject {
	v := model.ExtractedValue{
		ID:       id,
		RawText:  raw,
		DataType: dt,
		Context:  model.BusinessContext{Description: desc, Category: category},
	}
	return NewSubject(v, normalize.Normalize(raw, dt))
}
