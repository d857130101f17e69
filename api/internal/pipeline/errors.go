package pipeline

import "errors"

// Failure classes a caller can act on with errors.Is. Everything a resolve
// can fail with wraps exactly one of these.
var (
	// ErrInput: the submitted image is unusable (undecodable, empty, or OCR
	// produced nothing readable). Nothing was written.
	ErrInput = errors.New("unusable input")

	// ErrAnalysisFormat: the analyzer responded but not with a parseable
	// payload. Nothing was cached.
	ErrAnalysisFormat = errors.New("malformed analysis response")

	// ErrPersistence: a storage write failed; the question may be cached but
	// the submission record is not guaranteed.
	ErrPersistence = errors.New("persistence failure")
)
