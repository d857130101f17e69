// Package analysis holds the structured verdict an analyzer model produces
// for one question, and the tolerant parser that digs it out of a raw model
// response.
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Analysis is the pedagogical verdict for a single question. IsCorrect is a
// pointer so a missing verdict stays distinguishable from an explicit false.
type Analysis struct {
	Subject        string `json:"subject"`
	IsCorrect      *bool  `json:"is_correct"`
	ErrorAnalysis  string `json:"error_analysis"`
	CorrectAnswer  string `json:"correct_answer"`
	SolutionSteps  string `json:"solution_steps"`
	KnowledgePoint string `json:"knowledge_point"`
	CommonMistakes string `json:"common_mistakes"`
}

var ErrBadPayload = errors.New("analysis response is not valid JSON")

// HasContent reports whether the analysis carries at least a subject or
// solution text. Anything emptier than that must not be cached or served.
func (a Analysis) HasContent() bool {
	return strings.TrimSpace(a.Subject) != "" || strings.TrimSpace(a.SolutionSteps) != ""
}

// Incorrect reports an explicit wrong-answer verdict. An absent verdict is
// indeterminate, not a mistake.
func (a Analysis) Incorrect() bool {
	return a.IsCorrect != nil && !*a.IsCorrect
}

// Parse extracts the single JSON payload from a raw model response. Models
// routinely wrap it in markdown fences or surrounding prose; both are
// tolerated, anything without a parseable object is ErrBadPayload.
func Parse(raw string) (Analysis, error) {
	payload := extractObject(raw)
	var a Analysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return a, nil
}

func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject returns the first balanced {...} in s, fences stripped.
func extractObject(raw string) string {
	s := StripCodeFences(raw)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
