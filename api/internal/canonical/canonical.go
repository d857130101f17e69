// Package canonical normalizes OCR text and derives the content identifier
// that keys the question bank. Normalization is purely syntactic: whitespace
// removal and lower-casing, nothing semantic.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// OCR extractors report these lines instead of question text when
// recognition finds nothing or blows up. They must never be cached.
const (
	SentinelFailed = "识别失败"
	SentinelError  = "识别异常"
)

// Normalize strips all whitespace and lower-cases, so line-splitting and
// casing artifacts from OCR collapse to one canonical form.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// QuestionID derives the content identifier: sha256 over the normalized text.
func QuestionID(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

func IsSentinel(s string) bool {
	s = strings.TrimSpace(s)
	return s == SentinelFailed || s == SentinelError
}

// ValidText reports whether a string looks like real question text rather
// than an empty result or a failure sentinel.
func ValidText(s string) bool {
	return strings.TrimSpace(s) != "" && !IsSentinel(s)
}
