package store

import (
	"context"
	"encoding/json"

	"studyhelper/api/internal/analysis"
	"studyhelper/api/internal/canonical"
)

// SweepResult summarizes one maintenance pass.
type SweepResult struct {
	QuestionsRemoved    int `json:"questions_removed"`
	FingerprintsRemoved int `json:"fingerprints_removed"`
}

// Sweep removes invalid questions (sentinel or empty text, contentless or
// corrupt analysis) and prunes fingerprint index entries that no longer
// reference a surviving question. Invoked out-of-band, never on the request
// path.
func (r *QuestionRepo) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	rows, err := r.DB.QueryContext(ctx, `select question_id, canonical_text, analysis_json from questions`)
	if err != nil {
		return res, err
	}
	var bad []string
	for rows.Next() {
		var (
			id, text string
			js       []byte
		)
		if err := rows.Scan(&id, &text, &js); err != nil {
			rows.Close()
			return res, err
		}
		var a analysis.Analysis
		if !canonical.ValidText(text) || json.Unmarshal(js, &a) != nil || !a.HasContent() {
			bad = append(bad, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return res, err
	}
	rows.Close()

	for _, id := range bad {
		if _, err := r.DB.ExecContext(ctx, `delete from questions where question_id = $1`, id); err != nil {
			return res, err
		}
		res.QuestionsRemoved++
	}

	pruned, err := r.DB.ExecContext(ctx, `
delete from question_fingerprints
where question_id not in (select question_id from questions)`)
	if err != nil {
		return res, err
	}
	if n, err := pruned.RowsAffected(); err == nil {
		res.FingerprintsRemoved = int(n)
	}
	return res, nil
}
