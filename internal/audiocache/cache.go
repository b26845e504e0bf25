// Package audiocache stores synthesized narration audio so repeated lines
// are not synthesized twice.
//
// It is a transient performance cache: a miss or a backend error only costs
// a synthesis request, never a narration.
package audiocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Cache stores audio by key.
type Cache interface {
	// Get returns the audio stored under key. ok is false on a miss.
	Get(ctx context.Context, key string) (audio []byte, ok bool, err error)

	// Set stores audio under key.
	Set(ctx context.Context, key string, audio []byte) error
}

// Key derives a cache key from the text spoken and the voice settings that
// shape the audio. Text is NFC-normalised so visually identical lines share
// an entry.
func Key(text, voice, model string) string {
	h := sha256.New()
	h.Write([]byte(norm.NFC.String(text)))
	h.Write([]byte{0})
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
