package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studyhelper/api/internal/canonical"
	"studyhelper/api/internal/phash"
	"studyhelper/api/internal/store"
)

type fakeOCR struct {
	lines []string
	err   error
	calls int
}

func (f *fakeOCR) Name() string { return "fake-ocr" }

func (f *fakeOCR) Extract(ctx context.Context, img []byte) ([]string, error) {
	f.calls++
	return f.lines, f.err
}

type fakeAnalyzer struct {
	raw   string
	err   error
	calls int
}

func (f *fakeAnalyzer) Name() string { return "fake-analyzer" }

func (f *fakeAnalyzer) Analyze(ctx context.Context, questionText string) (string, error) {
	f.calls++
	return f.raw, f.err
}

const wrongAnswerRaw = "```json\n" + `{
  "subject": "数学",
  "is_correct": false,
  "error_analysis": "计算错误，1加1应该等于2。",
  "correct_answer": "1 + 1 = 2",
  "solution_steps": "将1和1相加，得到2。",
  "knowledge_point": "10以内的加法",
  "common_mistakes": "数数不准。"
}` + "\n```"

const rightAnswerRaw = `{"subject":"数学","is_correct":true,"solution_steps":"2加2等于4。"}`

// fixedHasher derives the fingerprint from the image bytes themselves, so
// tests control fingerprint equality by reusing or varying byte slices.
func fixedHasher(img []byte) (phash.Fingerprint, error) {
	return fmt.Sprintf("p:%016x", len(img)*31+int(img[0])), nil
}

func newTestResolver(t *testing.T, eng *fakeOCR, an *fakeAnalyzer) (*Resolver, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Resolver{
		Questions:   store.NewQuestionRepo(db),
		Submissions: store.NewSubmissionRepo(db),
		Mistakes:    store.NewMistakeRepo(db),
		OCR:         eng,
		Analyzer:    an,
		Log:         zap.NewNop(),
		Hasher:      fixedHasher,
	}, db
}

func TestResolveMissAnalyzesAndCaches(t *testing.T) {
	eng := &fakeOCR{lines: []string{"1 + 1 = 3"}}
	an := &fakeAnalyzer{raw: wrongAnswerRaw}
	r, _ := newTestResolver(t, eng, an)
	ctx := context.Background()

	res, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.NoError(t, err)

	assert.Equal(t, StatusMiss, res.CacheStatus)
	assert.Equal(t, canonical.QuestionID("1 + 1 = 3"), res.QuestionID)
	assert.Equal(t, "1 + 1 = 3", res.OCRText)
	assert.Equal(t, "数学", res.Analysis.Subject)
	assert.True(t, res.MistakeAdded)
	assert.Equal(t, 1, an.calls)

	q, err := r.Questions.FindByID(ctx, res.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, "1 + 1 = 3", q.CanonicalText)
	require.Len(t, q.Fingerprints, 1)

	subs, err := r.Submissions.ByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "1 + 1 = 3", subs[0].SubmittedText)
}

func TestResolveSamePhotoHitsFingerprint(t *testing.T) {
	eng := &fakeOCR{lines: []string{"1 + 1 = 3"}}
	an := &fakeAnalyzer{raw: wrongAnswerRaw}
	r, _ := newTestResolver(t, eng, an)
	ctx := context.Background()

	_, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.NoError(t, err)

	// the second read is degraded but the photo is identical
	eng.lines = []string{"1 + 1 = ?"}
	res, err := r.Resolve(ctx, Request{UserID: "u2", Image: []byte("photo-a")})
	require.NoError(t, err)

	assert.Equal(t, StatusPhashHit, res.CacheStatus)
	assert.Equal(t, 1, an.calls, "a fingerprint hit must not re-analyze")
	assert.Equal(t, "1 + 1 = ?", res.OCRText)

	// stored text is untouched by the degraded read
	q, err := r.Questions.FindByID(ctx, res.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, "1 + 1 = 3", q.CanonicalText)

	subs, err := r.Submissions.ByUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, SubmittedImageMatch, subs[0].SubmittedText)
}

func TestResolveNewPhotoSameTextMerges(t *testing.T) {
	eng := &fakeOCR{lines: []string{"1 + 1 = 3"}}
	an := &fakeAnalyzer{raw: wrongAnswerRaw}
	r, _ := newTestResolver(t, eng, an)
	ctx := context.Background()

	first, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.NoError(t, err)

	res, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-b!")})
	require.NoError(t, err)

	assert.Equal(t, StatusTextHashHit, res.CacheStatus)
	assert.Equal(t, first.QuestionID, res.QuestionID)
	assert.Equal(t, 1, an.calls)

	// the new photo's fingerprint joined the set
	q, err := r.Questions.FindByID(ctx, res.QuestionID)
	require.NoError(t, err)
	assert.Len(t, q.Fingerprints, 2)

	// and now the new photo answers from the fingerprint index directly
	res2, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-b!")})
	require.NoError(t, err)
	assert.Equal(t, StatusPhashHit, res2.CacheStatus)
	assert.Equal(t, 1, an.calls)
}

func TestResolveKeepFirstPolicyPreservesText(t *testing.T) {
	eng := &fakeOCR{lines: []string{"2 + 2 = 5"}}
	an := &fakeAnalyzer{raw: wrongAnswerRaw}
	r, _ := newTestResolver(t, eng, an)
	r.Merge = MergeKeepFirst
	ctx := context.Background()

	first, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.NoError(t, err)

	// same canonical text, different surface form and photo
	eng.lines = []string{"2  +  2  =  5"}
	res, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-b!")})
	require.NoError(t, err)
	assert.Equal(t, StatusTextHashHit, res.CacheStatus)
	assert.Equal(t, first.QuestionID, res.QuestionID)

	q, err := r.Questions.FindByID(ctx, res.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, "2 + 2 = 5", q.CanonicalText)
	assert.Len(t, q.Fingerprints, 2)
}

func TestResolveMistakeIsPerUserAndIdempotent(t *testing.T) {
	eng := &fakeOCR{lines: []string{"1 + 1 = 3"}}
	an := &fakeAnalyzer{raw: wrongAnswerRaw}
	r, _ := newTestResolver(t, eng, an)
	ctx := context.Background()

	res, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.NoError(t, err)
	assert.True(t, res.MistakeAdded)

	res, err = r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.NoError(t, err)
	assert.False(t, res.MistakeAdded, "same user, same question: no duplicate entry")

	res, err = r.Resolve(ctx, Request{UserID: "u2", Image: []byte("photo-a")})
	require.NoError(t, err)
	assert.True(t, res.MistakeAdded, "another user gets their own entry")
}

func TestResolveCorrectAnswerFilesNoMistake(t *testing.T) {
	eng := &fakeOCR{lines: []string{"2 + 2 = 4"}}
	an := &fakeAnalyzer{raw: rightAnswerRaw}
	r, _ := newTestResolver(t, eng, an)

	res, err := r.Resolve(context.Background(), Request{UserID: "u1", Image: []byte("photo-a")})
	require.NoError(t, err)
	assert.False(t, res.MistakeAdded)

	mistakes, err := r.Mistakes.ByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, mistakes)
}

func TestResolveSentinelTextIsInputError(t *testing.T) {
	eng := &fakeOCR{lines: []string{canonical.SentinelFailed}}
	an := &fakeAnalyzer{raw: wrongAnswerRaw}
	r, _ := newTestResolver(t, eng, an)
	ctx := context.Background()

	_, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.ErrorIs(t, err, ErrInput)
	assert.Equal(t, 0, an.calls)

	subs, err := r.Submissions.ByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, subs, "a failed read leaves no ledger entry")
}

func TestResolveEmptyImageIsInputError(t *testing.T) {
	eng := &fakeOCR{lines: []string{"x"}}
	r, _ := newTestResolver(t, eng, &fakeAnalyzer{})

	_, err := r.Resolve(context.Background(), Request{UserID: "u1"})
	require.ErrorIs(t, err, ErrInput)
	assert.Equal(t, 0, eng.calls)
}

func TestResolveBadAnalyzerPayloadPollutesNothing(t *testing.T) {
	eng := &fakeOCR{lines: []string{"1 + 1 = 3"}}
	an := &fakeAnalyzer{raw: "抱歉，我无法分析这道题。"}
	r, _ := newTestResolver(t, eng, an)
	ctx := context.Background()

	_, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.ErrorIs(t, err, ErrAnalysisFormat)

	_, err = r.Questions.FindByID(ctx, canonical.QuestionID("1 + 1 = 3"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	subs, err := r.Submissions.ByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)

	// a later good response goes through untainted
	an.raw = wrongAnswerRaw
	res, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, res.CacheStatus)
}

func TestResolveAnalyzerFailureIsFormatError(t *testing.T) {
	eng := &fakeOCR{lines: []string{"1 + 1 = 3"}}
	an := &fakeAnalyzer{err: errors.New("upstream 500")}
	r, _ := newTestResolver(t, eng, an)

	_, err := r.Resolve(context.Background(), Request{UserID: "u1", Image: []byte("photo-a")})
	require.ErrorIs(t, err, ErrAnalysisFormat)
}

func TestResolveForceNewSkipsCache(t *testing.T) {
	eng := &fakeOCR{lines: []string{"1 + 1 = 3"}}
	an := &fakeAnalyzer{raw: wrongAnswerRaw}
	r, _ := newTestResolver(t, eng, an)
	ctx := context.Background()

	_, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a")})
	require.NoError(t, err)

	res, err := r.Resolve(ctx, Request{UserID: "u1", Image: []byte("photo-a"), ForceNew: true})
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, res.CacheStatus)
	assert.Equal(t, 2, an.calls)
}

func TestParseMergePolicy(t *testing.T) {
	assert.Equal(t, MergeKeepFirst, ParseMergePolicy("keep_first"))
	assert.Equal(t, MergeOverwrite, ParseMergePolicy("overwrite"))
	assert.Equal(t, MergeOverwrite, ParseMergePolicy(""))
	assert.Equal(t, MergeOverwrite, ParseMergePolicy("whatever"))
}
