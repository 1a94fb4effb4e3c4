package oracle

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/resilience"
	"github.com/sells-group/recon-cli/pkg/anthropic"
)

func testClaudeConfig() config.AnthropicConfig {
	return config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 1024, MaxSources: 2}
}

func TestClaude_Compare(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			len(req.System) == 1 && req.System[0].Cache &&
			strings.Contains(req.Messages[0].Content, `"raw": "$1.2M"`) &&
			strings.Contains(req.Messages[0].Content, `"normalized": 1200000`)
	})).Return(textResponse("```json\n{\"equivalent\": true, \"confidence\": 0.95, \"rationale\": \"Same revenue figure.\"}\n```"), nil)

	c := NewClaude(client, testClaudeConfig())
	v, err := c.Compare(context.Background(),
		subject("p1", "$1.2M", model.DataTypeCurrency, "FY24 revenue", "revenue"),
		subject("s1", "1,200,000", model.DataTypeCurrency, "Revenue total", "revenue"),
	)
	require.NoError(t, err)
	assert.True(t, v.Equivalent)
	assert.False(t, v.Abstained)
	assert.InDelta(t, 0.95, v.Confidence, 1e-9)
	assert.Equal(t, "Same revenue figure.", v.Rationale)
	client.AssertExpectations(t)
}

func TestClaude_Compare_ClampsAndAbstains(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`Sure: {"equivalent": false, "confidence": 1.7, "rationale": "x"}`), nil).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"equivalent": true, "abstain": true, "confidence": 0.2}`), nil).Once()

	c := NewClaude(client, testClaudeConfig())
	p := subject("p1", "15%", model.DataTypePercentage, "margin", "")
	s := subject("s1", "0.12", model.DataTypePercentage, "margin", "")

	v, err := c.Compare(context.Background(), p, s)
	require.NoError(t, err)
	assert.False(t, v.Equivalent)
	assert.InDelta(t, 1.0, v.Confidence, 1e-9)

	v, err = c.Compare(context.Background(), p, s)
	require.NoError(t, err)
	assert.True(t, v.Abstained)
}

func TestClaude_Compare_Malformed(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I cannot tell."), nil)

	c := NewClaude(client, testClaudeConfig())
	_, err := c.Compare(context.Background(),
		subject("p1", "1", model.DataTypeCount, "", ""),
		subject("s1", "1", model.DataTypeCount, "", ""),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClaude_Compare_TransientStatus(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.APIError{StatusCode: http.StatusTooManyRequests, Err: errors.New("rate limited")})

	c := NewClaude(client, testClaudeConfig())
	_, err := c.Compare(context.Background(),
		subject("p1", "1", model.DataTypeCount, "", ""),
		subject("s1", "1", model.DataTypeCount, "", ""),
	)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestClaude_Score(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		content := req.Messages[0].Content
		return strings.Contains(content, "CANDIDATE SOURCE VALUES") &&
			strings.Contains(content, `"id": "s1"`) &&
			strings.Contains(content, `"id": "s2"`) &&
			!strings.Contains(content, `"id": "s3"`)
	})).Return(textResponse(`{"scores": [{"source_id": "s2", "score": 0.8}, {"source_id": "s1", "score": 1.4}, {"source_id": "zz", "score": 1}]}`), nil).Once()

	c := NewClaude(client, testClaudeConfig())
	scores, err := c.Score(context.Background(),
		subject("p1", "$1.2M", model.DataTypeCurrency, "FY24 revenue", "revenue"),
		[]Subject{
			subject("s1", "1,200,000", model.DataTypeCurrency, "Revenue total", "revenue"),
			subject("s2", "1,150,000", model.DataTypeCurrency, "Revenue FY23", "revenue"),
			subject("s3", "42", model.DataTypeCount, "Headcount", "people"),
		})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.8, 0}, scores)
	client.AssertExpectations(t)
}

func TestClaude_Score_Errors(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("no idea"), nil).Once()

	c := NewClaude(client, testClaudeConfig())
	p := subject("p1", "1", model.DataTypeCount, "", "")
	_, err := c.Score(context.Background(), p, []Subject{subject("s1", "1", model.DataTypeCount, "", "")})
	assert.ErrorIs(t, err, ErrMalformedResponse)

	scores, err := c.Score(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestClaude_ScoreThroughGuard(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.APIError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("unavailable")}).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"scores": [{"source_id": "s1", "score": 0.7}]}`), nil).Once()

	sc := AsScorer(NewGuard(NewClaude(client, testClaudeConfig()), testGuardConfig()))
	require.NotNil(t, sc)
	scores, err := sc.Score(context.Background(),
		subject("p1", "1", model.DataTypeCount, "", ""),
		[]Subject{subject("s1", "1", model.DataTypeCount, "", "")})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.7}, scores)
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestClaude_CompareBatch(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		content := req.Messages[0].Content
		// MaxSources is 2, so the third source never reaches the prompt.
		return strings.Contains(content, "(batch 4)") &&
			strings.Contains(content, `"s2"`) && !strings.Contains(content, `"s3"`)
	})).Return(textResponse(`{"results": [
		{"presentation_id": "p2", "source_id": null, "equivalent": false, "confidence": 0.1, "rationale": "nothing similar"},
		{"presentation_id": "p1", "source_id": "s2", "equivalent": true, "confidence": 0.9, "rationale": "same margin"},
		{"presentation_id": "p3", "source_id": "s9", "equivalent": true, "confidence": 0.9, "rationale": "made up"}
	]}`), nil)

	c := NewClaude(client, testClaudeConfig())
	pres := []Subject{
		subject("p1", "42%", model.DataTypePercentage, "gross margin", ""),
		subject("p2", "7", model.DataTypeCount, "offices", ""),
		subject("p3", "3", model.DataTypeCount, "regions", ""),
		subject("p4", "9", model.DataTypeCount, "products", ""),
	}
	srcs := []Subject{
		subject("s1", "100", model.DataTypeCount, "headcount", ""),
		subject("s2", "0.42", model.DataTypePercentage, "gross margin", ""),
		subject("s3", "9", model.DataTypeCount, "products", ""),
	}

	matches, err := c.CompareBatch(WithBatch(context.Background(), 4), pres, srcs)
	require.NoError(t, err)
	require.Len(t, matches, 4)

	assert.Equal(t, "p1", matches[0].PresentationID)
	assert.Equal(t, "s2", matches[0].SourceID)
	assert.True(t, matches[0].Verdict.Equivalent)
	assert.False(t, matches[0].Verdict.Abstained)

	assert.Equal(t, "p2", matches[1].PresentationID)
	assert.Empty(t, matches[1].SourceID)
	assert.True(t, matches[1].Verdict.Abstained)

	assert.Empty(t, matches[2].SourceID)
	assert.True(t, matches[2].Verdict.Abstained)
	assert.Contains(t, matches[2].Verdict.Rationale, "unknown source s9")

	assert.Equal(t, "p4", matches[3].PresentationID)
	assert.True(t, matches[3].Verdict.Abstained)
	assert.Equal(t, "no result returned for value", matches[3].Verdict.Rationale)
}

func TestClaude_CompareBatch_Empty(t *testing.T) {
	client := &mockAnthropicClient{}
	c := NewClaude(client, testClaudeConfig())
	matches, err := c.CompareBatch(context.Background(), nil, []Subject{{ID: "s1"}})
	require.NoError(t, err)
	assert.Empty(t, matches)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `Here you go: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`},
		{"no object", "nothing", "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}
