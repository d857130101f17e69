// Package phash derives perceptual fingerprints from uploaded photos. Two
// uploads of the same photo (re-encoded, slightly resized) map to the same
// fingerprint; photos of different content do not.
package phash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"
)

// Fingerprint is the string form of a 64-bit DCT perceptual hash ("p:%016x").
type Fingerprint = string

// FromBytes decodes a photo and computes its perceptual fingerprint. An
// undecodable image is an error: callers must treat it as "no fingerprint
// available", never as a lookup key.
func FromBytes(img []byte) (Fingerprint, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	h, err := goimagehash.PerceptionHash(decoded)
	if err != nil {
		return "", fmt.Errorf("perception hash: %w", err)
	}
	return h.ToString(), nil
}
