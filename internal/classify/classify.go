// Package classify turns a normalized delta and an oracle verdict into a
// reconciliation category.
package classify

import (
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/oracle"
)

// Suggested actions per category.
const (
	ActionVerifySource  = "verify source value and correct presentation"
	ActionStandardize   = "standardize display format"
	ActionManualConfirm = "manually confirm: insufficient signal"
)

// Classify decides the category of one compared pair. Rules are evaluated
// in order and the first that applies wins:
//
//  1. no verdict (oracle failed or the pair was skipped) → unverifiable
//  2. equivalent with exact numeric agreement and agreeing display forms,
//     or equal canonical text → matched
//  3. any other equivalent verdict → formatting_error
//  4. not equivalent → mismatched
//  5. abstained → unverifiable
//
// An abstaining oracle says neither equivalent nor not equivalent, so only
// the last rule takes it. Verdict confidence never changes the category;
// the aggregator reports committed verdicts below the confidence floor.
//
// The result depends only on its arguments.
func Classify(delta model.Delta, verdict *oracle.Verdict) model.Category {
	if verdict == nil {
		return model.CategoryUnverifiable
	}
	committed := !verdict.Abstained
	switch {
	case committed && verdict.Equivalent && delta.Comparable && delta.Exact && delta.DisplayAgrees:
		return model.CategoryMatched
	case committed && verdict.Equivalent:
		return model.CategoryFormattingError
	case committed:
		return model.CategoryMismatched
	default:
		return model.CategoryUnverifiable
	}
}

// SuggestedAction returns the follow-up for c, or nil for matched.
func SuggestedAction(c model.Category) *string {
	var s string
	switch c {
	case model.CategoryMismatched:
		s = ActionVerifySource
	case model.CategoryFormattingError:
		s = ActionStandardize
	case model.CategoryUnverifiable:
		s = ActionManualConfirm
	default:
		return nil
	}
	return &s
}
