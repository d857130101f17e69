package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studyhelper/api/internal/analysis"
)

// Mistake is one deduplicated wrong-answer record: at most one entry per
// (user, question), carrying a snapshot of the analysis that triggered it.
type Mistake struct {
	ID             string
	UserID         string
	QuestionID     string
	QuestionText   string
	KnowledgePoint string
	ErrorAnalysis  string
	ReviewStatus   string
	AddedAt        time.Time
}

type MistakeRepo struct{ DB *DB }

func NewMistakeRepo(db *DB) *MistakeRepo { return &MistakeRepo{DB: db} }

// Admit inserts a mistake entry unless one already exists for this
// (user, question) pair. Returns whether a new entry was added;
// already-present is a no-op, not an error.
func (r *MistakeRepo) Admit(ctx context.Context, userID, questionID, questionText string, a analysis.Analysis) (bool, error) {
	const q = `
insert into mistakes (mistake_id, user_id, question_id, question_text, knowledge_point, error_analysis, review_status, added_at)
values ($1,$2,$3,$4,$5,$6,$7,$8)
on conflict (user_id, question_id) do nothing`
	res, err := r.DB.ExecContext(ctx, q,
		uuid.NewString(), userID, questionID, questionText,
		a.KnowledgePoint, a.ErrorAnalysis, "pending", time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ByUser returns a user's mistake register, newest first. Entries persist
// until an external reviewer updates review_status; nothing here removes
// them.
func (r *MistakeRepo) ByUser(ctx context.Context, userID string) ([]Mistake, error) {
	const q = `
select mistake_id, user_id, question_id, question_text, knowledge_point, error_analysis, review_status, added_at
from mistakes
where user_id = $1
order by added_at desc, mistake_id`
	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Mistake
	for rows.Next() {
		var m Mistake
		if err := rows.Scan(&m.ID, &m.UserID, &m.QuestionID, &m.QuestionText,
			&m.KnowledgePoint, &m.ErrorAnalysis, &m.ReviewStatus, &m.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
