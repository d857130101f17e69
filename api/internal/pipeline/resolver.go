// Package pipeline turns one submitted photo into an analyzed question:
// OCR, cache lookup by perceptual fingerprint then by canonical text hash,
// analyzer call on a miss, and the submission and mistake bookkeeping that
// follows.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"studyhelper/api/internal/analysis"
	"studyhelper/api/internal/analyzer"
	"studyhelper/api/internal/canonical"
	"studyhelper/api/internal/ocr"
	"studyhelper/api/internal/phash"
	"studyhelper/api/internal/store"
)

// Cache status values reported on a resolution.
const (
	StatusPhashHit    = "phash_hit"
	StatusTextHashHit = "text_hash_hit"
	StatusMiss        = "miss"
)

// SubmittedImageMatch is recorded as the submission text when a photo is
// served straight from the fingerprint index, without re-reading its text.
const SubmittedImageMatch = "(image match)"

const defaultAnalyzeTimeout = 90 * time.Second

// Request is one photo to resolve on behalf of a user.
type Request struct {
	UserID   string
	Image    []byte
	ImageRef string // external file id or URL, kept as provenance only
	ForceNew bool   // skip cache lookups, always analyze fresh

	// Engine overrides the resolver's default OCR engine for this request,
	// e.g. when a chat switched engines.
	Engine ocr.Engine
}

// Resolution is the outcome of a resolve: the cached or freshly built
// question plus what happened along the way.
type Resolution struct {
	QuestionID   string
	OCRText      string
	Analysis     analysis.Analysis
	CacheStatus  string
	MistakeAdded bool
}

// Resolver wires the stages together. All fields except Hasher and timeouts
// are required.
type Resolver struct {
	Questions   *store.QuestionRepo
	Submissions *store.SubmissionRepo
	Mistakes    *store.MistakeRepo
	OCR         ocr.Engine
	Analyzer    analyzer.Analyzer
	Log         *zap.Logger

	Merge          MergePolicy
	AnalyzeTimeout time.Duration

	// Hasher overrides perceptual fingerprinting; nil means phash.FromBytes.
	Hasher func(img []byte) (phash.Fingerprint, error)

	inflight singleflight.Group
}

// Resolve runs the full pipeline for one submission. On any returned error
// the resolution is zero except where the error class documents otherwise.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	if len(req.Image) == 0 {
		return Resolution{}, fmt.Errorf("%w: empty image", ErrInput)
	}

	eng := r.OCR
	if req.Engine != nil {
		eng = req.Engine
	}
	lines, err := eng.Extract(ctx, req.Image)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: ocr: %v", ErrInput, err)
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if !canonical.ValidText(text) || canonical.IsSentinel(lines[0]) {
		return Resolution{}, fmt.Errorf("%w: no readable text", ErrInput)
	}

	fp := r.fingerprint(req.Image)
	id := canonical.QuestionID(text)
	log := r.Log.With(zap.String("question_id", id), zap.String("user_id", req.UserID))

	if !req.ForceNew {
		// L1: same photo (or near-identical) seen before.
		if fp != "" {
			q, err := r.Questions.FindByFingerprint(ctx, fp)
			if err == nil {
				log.Info("fingerprint hit", zap.String("fingerprint", fp))
				return r.record(ctx, req.UserID, q, SubmittedImageMatch, text, StatusPhashHit)
			}
			if err != store.ErrNotFound {
				// lookup trouble degrades to a miss, it must not fail the user
				log.Warn("fingerprint lookup failed", zap.Error(err))
			}
		}

		// L2: same text read from a different photo.
		q, err := r.Questions.FindByID(ctx, id)
		if err == nil {
			log.Info("text hash hit")
			if merr := r.merge(ctx, q, text, fp); merr != nil {
				log.Warn("merge failed", zap.Error(merr))
			}
			return r.record(ctx, req.UserID, q, text, text, StatusTextHashHit)
		}
		if err != store.ErrNotFound {
			log.Warn("question lookup failed", zap.Error(err))
		}
	}

	// Miss: one analyzer call per question id, however many users race on it.
	v, err, _ := r.inflight.Do(id, func() (any, error) {
		return r.analyzeAndAdmit(ctx, id, text, fp, req.ImageRef)
	})
	if err != nil {
		return Resolution{}, err
	}
	q := v.(*store.Question)
	log.Info("analyzed", zap.String("analyzer", r.Analyzer.Name()), zap.String("subject", q.Subject))
	return r.record(ctx, req.UserID, q, text, text, StatusMiss)
}

func (r *Resolver) fingerprint(img []byte) phash.Fingerprint {
	hash := r.Hasher
	if hash == nil {
		hash = phash.FromBytes
	}
	fp, err := hash(img)
	if err != nil {
		// a photo we cannot fingerprint still resolves through the text path
		r.Log.Warn("fingerprint failed", zap.Error(err))
		return ""
	}
	return fp
}

// merge folds a fresh read of a known question into the store: the new
// fingerprint always joins the set, text and analysis follow the policy.
func (r *Resolver) merge(ctx context.Context, q *store.Question, text string, fp phash.Fingerprint) error {
	merged := *q
	overwrite := r.Merge != MergeKeepFirst
	if overwrite {
		merged.CanonicalText = text
	}
	return r.Questions.Admit(ctx, merged, fp, overwrite)
}

func (r *Resolver) analyzeAndAdmit(ctx context.Context, id, text string, fp phash.Fingerprint, imageRef string) (*store.Question, error) {
	timeout := r.AnalyzeTimeout
	if timeout <= 0 {
		timeout = defaultAnalyzeTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := r.Analyzer.Analyze(actx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAnalysisFormat, r.Analyzer.Name(), err)
	}
	a, err := analysis.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFormat, err)
	}
	if !a.HasContent() {
		return nil, fmt.Errorf("%w: empty analysis", ErrAnalysisFormat)
	}

	q := store.Question{
		ID:             id,
		CanonicalText:  text,
		Subject:        a.Subject,
		Analysis:       a,
		FirstSeenImage: imageRef,
	}
	if err := r.Questions.Admit(ctx, q, fp, true); err != nil {
		return nil, fmt.Errorf("%w: admit question: %v", ErrPersistence, err)
	}
	q.Fingerprints = appendUnique(nil, fp)
	return &q, nil
}

// record appends the submission and, on an explicitly wrong answer, files
// the mistake. The mistake snapshot uses the text as read this time, not
// the stored canonical text.
func (r *Resolver) record(ctx context.Context, userID string, q *store.Question, submitted, ocrText, status string) (Resolution, error) {
	res := Resolution{
		QuestionID:  q.ID,
		OCRText:     ocrText,
		Analysis:    q.Analysis,
		CacheStatus: status,
	}
	if _, err := r.Submissions.Append(ctx, userID, q.ID, submitted); err != nil {
		return Resolution{}, fmt.Errorf("%w: append submission: %v", ErrPersistence, err)
	}
	if q.Analysis.Incorrect() {
		added, err := r.Mistakes.Admit(ctx, userID, q.ID, ocrText, q.Analysis)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: admit mistake: %v", ErrPersistence, err)
		}
		res.MistakeAdded = added
	}
	return res, nil
}

func appendUnique(fps []string, fp string) []string {
	if fp == "" {
		return fps
	}
	for _, x := range fps {
		if x == fp {
			return fps
		}
	}
	return append(fps, fp)
}
