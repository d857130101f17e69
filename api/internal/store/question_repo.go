package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"studyhelper/api/internal/analysis"
	"studyhelper/api/internal/canonical"
)

// Question is one cached unit of analyzed knowledge, keyed by the content
// identifier of its canonical text.
type Question struct {
	ID             string
	CanonicalText  string
	Subject        string
	Analysis       analysis.Analysis
	Fingerprints   []string
	FirstSeenImage string
	FirstSeenAt    time.Time
}

// Valid reports whether the question may be served from the cache: real text
// (no failure sentinel) and an analysis with actual content.
func (q *Question) Valid() bool {
	return canonical.ValidText(q.CanonicalText) && q.Analysis.HasContent()
}

type QuestionRepo struct{ DB *DB }

func NewQuestionRepo(db *DB) *QuestionRepo { return &QuestionRepo{DB: db} }

// FindByID fetches a question by content identifier. Structurally present but
// invalid rows (sentinel text, contentless or corrupt analysis) are reported
// as ErrNotFound so stale junk can never satisfy a lookup.
func (r *QuestionRepo) FindByID(ctx context.Context, questionID string) (*Question, error) {
	const q = `
select question_id, canonical_text, coalesce(subject,'') as subject,
       analysis_json, coalesce(first_seen_image,'') as first_seen_image, first_seen_at
from questions
where question_id = $1`
	return r.scanValid(ctx, r.DB.QueryRowContext(ctx, q, questionID))
}

// FindByFingerprint resolves a perceptual fingerprint through the index and
// fetches the question it points at. A dangling index entry is ErrNotFound.
func (r *QuestionRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*Question, error) {
	const q = `
select q.question_id, q.canonical_text, coalesce(q.subject,'') as subject,
       q.analysis_json, coalesce(q.first_seen_image,'') as first_seen_image, q.first_seen_at
from question_fingerprints f
join questions q on q.question_id = f.question_id
where f.fingerprint = $1`
	return r.scanValid(ctx, r.DB.QueryRowContext(ctx, q, fingerprint))
}

func (r *QuestionRepo) scanValid(ctx context.Context, row *sql.Row) (*Question, error) {
	var (
		q  Question
		js []byte
	)
	if err := row.Scan(&q.ID, &q.CanonicalText, &q.Subject, &js, &q.FirstSeenImage, &q.FirstSeenAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(js, &q.Analysis); err != nil {
		// corrupt payload: treat as absent, the maintenance sweep reaps it
		return nil, ErrNotFound
	}
	if !q.Valid() {
		return nil, ErrNotFound
	}
	fps, err := r.fingerprintsOf(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Fingerprints = fps
	return &q, nil
}

func (r *QuestionRepo) fingerprintsOf(ctx context.Context, questionID string) ([]string, error) {
	const q = `select fingerprint from question_fingerprints where question_id = $1 order by fingerprint`
	rows, err := r.DB.QueryContext(ctx, q, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// Admit writes a question and its fingerprint association in one
// transaction, so a crash can never leave the index pointing at a question
// that was not durably written. Insert on a new identifier; on an existing
// one overwrite text and analysis when overwrite is set (the fingerprint set
// only ever grows either way). Provenance columns keep their first values.
func (r *QuestionRepo) Admit(ctx context.Context, q Question, fingerprint string, overwrite bool) error {
	js, err := json.Marshal(q.Analysis)
	if err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := `
insert into questions (question_id, canonical_text, subject, analysis_json, first_seen_image, first_seen_at)
values ($1,$2,$3,$4,$5,$6)
on conflict (question_id) do update
set canonical_text = excluded.canonical_text,
    subject = excluded.subject,
    analysis_json = excluded.analysis_json`
	if !overwrite {
		upsert = `
insert into questions (question_id, canonical_text, subject, analysis_json, first_seen_image, first_seen_at)
values ($1,$2,$3,$4,$5,$6)
on conflict (question_id) do nothing`
	}
	firstSeen := q.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, upsert,
		q.ID, q.CanonicalText, q.Subject, js, q.FirstSeenImage, firstSeen,
	); err != nil {
		return err
	}

	if fingerprint != "" {
		// last write wins: re-associating a fingerprint silently moves it
		const fq = `
insert into question_fingerprints (fingerprint, question_id)
values ($1,$2)
on conflict (fingerprint) do update set question_id = excluded.question_id`
		if _, err := tx.ExecContext(ctx, fq, fingerprint, q.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
