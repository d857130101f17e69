package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyhelper/api/internal/analysis"
	"studyhelper/api/internal/canonical"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleAnalysis(correct bool) analysis.Analysis {
	return analysis.Analysis{
		Subject:        "数学",
		IsCorrect:      &correct,
		ErrorAnalysis:  "计算错误",
		CorrectAnswer:  "1 + 1 = 2",
		SolutionSteps:  "将1和1相加",
		KnowledgePoint: "10以内的加法",
		CommonMistakes: "数数不准",
	}
}

func sampleQuestion(text string) Question {
	return Question{
		ID:             canonical.QuestionID(text),
		CanonicalText:  text,
		Subject:        "数学",
		Analysis:       sampleAnalysis(false),
		FirstSeenImage: "upload-1.jpg",
		FirstSeenAt:    time.Now().UTC(),
	}
}

func TestQuestionAdmitAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewQuestionRepo(db)
	ctx := context.Background()

	q := sampleQuestion("1+1=3")
	require.NoError(t, repo.Admit(ctx, q, "p:00000000000000aa", true))

	got, err := repo.FindByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.CanonicalText, got.CanonicalText)
	assert.Equal(t, []string{"p:00000000000000aa"}, got.Fingerprints)

	byFp, err := repo.FindByFingerprint(ctx, "p:00000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, q.ID, byFp.ID)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByFingerprint(ctx, "p:ffffffffffffffff")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuestionAdmitGrowsFingerprintSet(t *testing.T) {
	db := openTestDB(t)
	repo := NewQuestionRepo(db)
	ctx := context.Background()

	q := sampleQuestion("1+1=3")
	require.NoError(t, repo.Admit(ctx, q, "p:00000000000000aa", true))
	require.NoError(t, repo.Admit(ctx, q, "p:00000000000000bb", true))
	// re-admitting a known fingerprint must not duplicate it
	require.NoError(t, repo.Admit(ctx, q, "p:00000000000000aa", true))

	got, err := repo.FindByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p:00000000000000aa", "p:00000000000000bb"}, got.Fingerprints)
}

func TestFingerprintLastWriteWins(t *testing.T) {
	db := openTestDB(t)
	repo := NewQuestionRepo(db)
	ctx := context.Background()

	q1 := sampleQuestion("1+1=3")
	q2 := sampleQuestion("2+2=5")
	require.NoError(t, repo.Admit(ctx, q1, "p:00000000000000aa", true))
	require.NoError(t, repo.Admit(ctx, q2, "p:00000000000000aa", true))

	got, err := repo.FindByFingerprint(ctx, "p:00000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, q2.ID, got.ID)

	// the old owner lost the fingerprint
	old, err := repo.FindByID(ctx, q1.ID)
	require.NoError(t, err)
	assert.Empty(t, old.Fingerprints)
}

func TestQuestionAdmitOverwriteAndKeepFirst(t *testing.T) {
	db := openTestDB(t)
	repo := NewQuestionRepo(db)
	ctx := context.Background()

	q := sampleQuestion("1+1=3")
	require.NoError(t, repo.Admit(ctx, q, "", true))

	updated := q
	updated.CanonicalText = "1 + 1 = 3"
	updated.Analysis.SolutionSteps = "updated steps"
	updated.FirstSeenImage = "upload-2.jpg"
	require.NoError(t, repo.Admit(ctx, updated, "", true))

	got, err := repo.FindByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 + 1 = 3", got.CanonicalText)
	assert.Equal(t, "updated steps", got.Analysis.SolutionSteps)
	// provenance always keeps its first value
	assert.Equal(t, "upload-1.jpg", got.FirstSeenImage)

	again := q
	again.CanonicalText = "should not land"
	require.NoError(t, repo.Admit(ctx, again, "", false))
	got, err = repo.FindByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 + 1 = 3", got.CanonicalText)
}

func TestInvalidQuestionIsNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewQuestionRepo(db)
	ctx := context.Background()

	now := time.Now().UTC()
	// sentinel text
	_, err := db.Exec(`insert into questions (question_id, canonical_text, subject, analysis_json, first_seen_at)
		values ($1,$2,$3,$4,$5)`, "bad-1", canonical.SentinelFailed, "数学", `{"subject":"数学"}`, now)
	require.NoError(t, err)
	// contentless analysis
	_, err = db.Exec(`insert into questions (question_id, canonical_text, subject, analysis_json, first_seen_at)
		values ($1,$2,$3,$4,$5)`, "bad-2", "1+1=3", "", `{}`, now)
	require.NoError(t, err)
	// corrupt payload
	_, err = db.Exec(`insert into questions (question_id, canonical_text, subject, analysis_json, first_seen_at)
		values ($1,$2,$3,$4,$5)`, "bad-3", "2+2=4", "", `{broken`, now)
	require.NoError(t, err)

	for _, id := range []string{"bad-1", "bad-2", "bad-3"} {
		_, err := repo.FindByID(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
}

func TestSubmissionLedger(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubmissionRepo(db)
	ctx := context.Background()

	s1, err := repo.Append(ctx, "u1", "q1", "1+1=3")
	require.NoError(t, err)
	assert.NotEmpty(t, s1.ID)
	_, err = repo.Append(ctx, "u1", "q2", "2+2=5")
	require.NoError(t, err)
	_, err = repo.Append(ctx, "u2", "q1", "1+1=3")
	require.NoError(t, err)

	all, err := repo.ByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := repo.ByUserAndQuestion(ctx, "u1", "q1")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, s1.ID, only[0].ID)

	none, err := repo.ByUser(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMistakeAdmitIdempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewMistakeRepo(db)
	ctx := context.Background()

	added, err := repo.Admit(ctx, "u1", "q1", "1+1=3", sampleAnalysis(false))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.Admit(ctx, "u1", "q1", "1+1=3 (noisier ocr)", sampleAnalysis(false))
	require.NoError(t, err)
	assert.False(t, added, "second admission for same (user, question) is a no-op")

	// same question for another user is a separate entry
	added, err = repo.Admit(ctx, "u2", "q1", "1+1=3", sampleAnalysis(false))
	require.NoError(t, err)
	assert.True(t, added)

	got, err := repo.ByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1+1=3", got[0].QuestionText)
	assert.Equal(t, "10以内的加法", got[0].KnowledgePoint)
	assert.Equal(t, "pending", got[0].ReviewStatus)
}

func TestSweepRemovesInvalidAndDanglingEntries(t *testing.T) {
	db := openTestDB(t)
	repo := NewQuestionRepo(db)
	ctx := context.Background()

	good := sampleQuestion("1+1=3")
	require.NoError(t, repo.Admit(ctx, good, "p:00000000000000aa", true))

	now := time.Now().UTC()
	_, err := db.Exec(`insert into questions (question_id, canonical_text, subject, analysis_json, first_seen_at)
		values ($1,$2,$3,$4,$5)`, "bad-1", canonical.SentinelError, "", `{"subject":"x"}`, now)
	require.NoError(t, err)
	_, err = db.Exec(`insert into question_fingerprints (fingerprint, question_id) values ($1,$2)`,
		"p:00000000000000bb", "bad-1")
	require.NoError(t, err)
	_, err = db.Exec(`insert into question_fingerprints (fingerprint, question_id) values ($1,$2)`,
		"p:00000000000000cc", "gone-entirely")
	require.NoError(t, err)

	res, err := repo.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.QuestionsRemoved)
	assert.Equal(t, 2, res.FingerprintsRemoved)

	// the valid question and its fingerprint survive
	got, err := repo.FindByFingerprint(ctx, "p:00000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, good.ID, got.ID)

	_, err = repo.FindByFingerprint(ctx, "p:00000000000000bb")
	assert.ErrorIs(t, err, ErrNotFound)
}
