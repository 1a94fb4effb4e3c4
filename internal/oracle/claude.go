package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/resilience"
	"github.com/sells-group/recon-cli/pkg/anthropic"
)

const systemPrompt = `You audit a presentation against its spreadsheet sources. You decide whether two extracted values state the same business fact.

Each value has its raw text, a data type, a normalized reading and a business context. Values are equivalent when they denote the same quantity for the same metric, even if the display differs (1.2M vs 1,200,000; 15% vs 0.15). Values for different metrics, periods or entities are not equivalent even when the numbers agree. If the context gives you too little to decide, abstain.

Respond with valid JSON only.`

const compareUserPrompt = `PRESENTATION VALUE:
%s

SOURCE VALUE:
%s

Return: {"equivalent": true|false, "confidence": <0.0-1.0>, "abstain": true|false, "rationale": "<one or two sentences>"}`

const batchUserPrompt = `PRESENTATION VALUES TO VALIDATE (batch %d):
%s

SOURCE VALUES TO SEARCH:
%s

For each presentation value pick the single best source value and judge it. Use "source_id": null when no source value corresponds.

Return: {"results": [{"presentation_id": "<id>", "source_id": "<id>"|null, "equivalent": true|false, "confidence": <0.0-1.0>, "abstain": true|false, "rationale": "<one or two sentences>"}]}`

const scoreUserPrompt = `PRESENTATION VALUE:
%s

CANDIDATE SOURCE VALUES:
%s

Rate how likely each candidate is the source this presentation value was taken from, judging the business context (metric, period, entity) more than the number. 1.0 means certainly the same fact, 0.0 means unrelated.

Return: {"scores": [{"source_id": "<id>", "score": <0.0-1.0>}]}`

// Claude is an Oracle backed by the Anthropic messages API.
type Claude struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
}

// NewClaude creates a Claude oracle.
func NewClaude(client anthropic.Client, cfg config.AnthropicConfig) *Claude {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 100
	}
	return &Claude{client: client, cfg: cfg}
}

type wireVerdict struct {
	PresentationID string   `json:"presentation_id"`
	SourceID       *string  `json:"source_id"`
	Equivalent     bool     `json:"equivalent"`
	Confidence     *float64 `json:"confidence"`
	Abstain        bool     `json:"abstain"`
	Rationale      string   `json:"rationale"`
}

func (w wireVerdict) verdict() Verdict {
	v := Verdict{
		Equivalent: w.Equivalent,
		Rationale:  strings.TrimSpace(w.Rationale),
		Abstained:  w.Abstain || w.Confidence == nil,
	}
	if w.Confidence != nil {
		v.Confidence = clamp01(*w.Confidence)
	}
	return v
}

// Compare implements Oracle.
func (c *Claude) Compare(ctx context.Context, presentation, source Subject) (Verdict, error) {
	prompt := fmt.Sprintf(compareUserPrompt, subjectJSON(presentation), subjectJSON(source))
	text, err := c.ask(ctx, prompt, "oracle.compare")
	if err != nil {
		return Verdict{}, err
	}

	var w wireVerdict
	if err := json.Unmarshal([]byte(cleanJSON(text)), &w); err != nil {
		return Verdict{}, eris.Wrapf(ErrMalformedResponse, "compare %s/%s: %v", presentation.ID, source.ID, err)
	}
	return w.verdict(), nil
}

// CompareBatch implements Oracle. At most cfg.MaxSources source values are
// offered per call.
func (c *Claude) CompareBatch(ctx context.Context, presentation, sources []Subject) ([]Match, error) {
	if len(presentation) == 0 {
		return nil, nil
	}
	if len(sources) > c.cfg.MaxSources {
		zap.L().Warn("oracle: truncating source values for batch prompt",
			zap.Int("sources", len(sources)),
			zap.Int("max_sources", c.cfg.MaxSources),
		)
		sources = sources[:c.cfg.MaxSources]
	}

	prompt := fmt.Sprintf(batchUserPrompt, batchNumber(ctx), subjectsJSON(presentation), subjectsJSON(sources))
	text, err := c.ask(ctx, prompt, "oracle.compare_batch")
	if err != nil {
		return nil, err
	}

	var reply struct {
		Results []wireVerdict `json:"results"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &reply); err != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "compare batch: %v", err)
	}

	matches := make([]Match, 0, len(reply.Results))
	for _, w := range reply.Results {
		m := Match{PresentationID: w.PresentationID, Verdict: w.verdict()}
		if w.SourceID != nil {
			m.SourceID = *w.SourceID
		}
		matches = append(matches, m)
	}
	return align(presentation, matches, sources), nil
}

// Score implements Scorer with one call per presentation value. Sources
// past cfg.MaxSources, and any the reply leaves out, score 0.
func (c *Claude) Score(ctx context.Context, presentation Subject, sources []Subject) ([]float64, error) {
	out := make([]float64, len(sources))
	if len(sources) == 0 {
		return out, nil
	}
	offered := sources
	if len(offered) > c.cfg.MaxSources {
		offered = offered[:c.cfg.MaxSources]
	}

	prompt := fmt.Sprintf(scoreUserPrompt, subjectJSON(presentation), subjectsJSON(offered))
	text, err := c.ask(ctx, prompt, "oracle.score")
	if err != nil {
		return nil, err
	}

	var reply struct {
		Scores []struct {
			SourceID string  `json:"source_id"`
			Score    float64 `json:"score"`
		} `json:"scores"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &reply); err != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "score %s: %v", presentation.ID, err)
	}

	idx := make(map[string]int, len(offered))
	for i, s := range offered {
		idx[s.ID] = i
	}
	for _, r := range reply.Scores {
		if i, ok := idx[r.SourceID]; ok {
			out[i] = clamp01(r.Score)
		}
	}
	return out, nil
}

func (c *Claude) ask(ctx context.Context, prompt, operation string) (string, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      anthropic.CachedSystem(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", resilience.Classify(eris.Wrap(err, "oracle: claude request"), anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(c.cfg.Model, operation)
	return resp.Text(), nil
}

func subjectJSON(s Subject) string {
	b, _ := json.MarshalIndent(promptSubject(s), "", " ")
	return string(b)
}

func subjectsJSON(ss []Subject) string {
	out := make([]map[string]any, len(ss))
	for i, s := range ss {
		out[i] = promptSubject(s)
	}
	b, _ := json.MarshalIndent(out, "", " ")
	return string(b)
}

// promptSubject trims a Subject to the fields worth spending tokens on.
func promptSubject(s Subject) map[string]any {
	m := map[string]any{
		"id":        s.ID,
		"raw":       s.Raw,
		"data_type": s.DataType,
		"context":   s.Context.Text(),
	}
	if s.Normalized.IsNumeric() {
		m["normalized"] = *s.Normalized.Numeric
		if s.Normalized.Unit != "" {
			m["unit"] = s.Normalized.Unit
		}
	} else if s.Normalized.IsParseable {
		m["normalized"] = s.Normalized.DisplayForm
	}
	if s.Locator != "" {
		m["location"] = s.Locator
	}
	return m
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or commentary around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

type batchKey struct{}

// WithBatch tags ctx with the batch number shown in batch prompts and logs.
func WithBatch(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, batchKey{}, n)
}

func batchNumber(ctx context.Context) int {
	n, _ := ctx.Value(batchKey{}).(int)
	return n
}
