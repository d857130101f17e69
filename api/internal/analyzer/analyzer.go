// Package analyzer defines the structured-analysis contract: given question
// text, a language model returns a raw response expected to contain exactly
// one JSON payload (see package analysis for the tolerant parser).
package analyzer

import "context"

type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, questionText string) (string, error)
}
