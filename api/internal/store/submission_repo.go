package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Submission is one append-only ledger entry: user U asked about question Q
// at time T, regardless of whether the cache answered or the analyzer ran.
type Submission struct {
	ID            string
	UserID        string
	QuestionID    string
	SubmittedText string
	CreatedAt     time.Time
}

type SubmissionRepo struct{ DB *DB }

func NewSubmissionRepo(db *DB) *SubmissionRepo { return &SubmissionRepo{DB: db} }

// Append records a submission. There is deliberately no update or delete.
func (r *SubmissionRepo) Append(ctx context.Context, userID, questionID, submittedText string) (Submission, error) {
	s := Submission{
		ID:            uuid.NewString(),
		UserID:        userID,
		QuestionID:    questionID,
		SubmittedText: submittedText,
		CreatedAt:     time.Now().UTC(),
	}
	const q = `
insert into submissions (submission_id, user_id, question_id, submitted_text, created_at)
values ($1,$2,$3,$4,$5)`
	if _, err := r.DB.ExecContext(ctx, q, s.ID, s.UserID, s.QuestionID, s.SubmittedText, s.CreatedAt); err != nil {
		return Submission{}, err
	}
	return s, nil
}

// ByUser returns every submission of one user, newest first.
func (r *SubmissionRepo) ByUser(ctx context.Context, userID string) ([]Submission, error) {
	const q = `
select submission_id, user_id, question_id, submitted_text, created_at
from submissions
where user_id = $1
order by created_at desc, submission_id`
	return r.scanAll(ctx, q, userID)
}

// ByUserAndQuestion returns one user's submissions for one question, newest
// first.
func (r *SubmissionRepo) ByUserAndQuestion(ctx context.Context, userID, questionID string) ([]Submission, error) {
	const q = `
select submission_id, user_id, question_id, submitted_text, created_at
from submissions
where user_id = $1 and question_id = $2
order by created_at desc, submission_id`
	return r.scanAll(ctx, q, userID, questionID)
}

func (r *SubmissionRepo) scanAll(ctx context.Context, q string, args ...any) ([]Submission, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Submission
	for rows.Next() {
		var s Submission
		if err := rows.Scan(&s.ID, &s.UserID, &s.QuestionID, &s.SubmittedText, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
