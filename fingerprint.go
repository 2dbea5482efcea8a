package genroute

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the deterministic cache key for a generation request:
// a hash of the normalized prompt, the task category, and the model-selection
// policy version. Two requests with the same fingerprint are interchangeable
// for caching purposes.
func Fingerprint(category, prompt, policyVersion string) string {
	h := sha256.New()
	h.Write([]byte(category))
	h.Write([]byte{0})
	h.Write([]byte(normalizePrompt(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(policyVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizePrompt collapses whitespace runs so that cosmetic formatting
// differences do not defeat the cache.
func normalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}
