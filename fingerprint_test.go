package genroute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint("blurb", "describe the widget", "v1")
	b := Fingerprint("blurb", "describe the widget", "v1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintNormalizesWhitespace(t *testing.T) {
	canonical := Fingerprint("blurb", "describe the widget", "v1")

	assert.Equal(t, canonical, Fingerprint("blurb", "describe   the widget", "v1"))
	assert.Equal(t, canonical, Fingerprint("blurb", "  describe the widget  ", "v1"))
	assert.Equal(t, canonical, Fingerprint("blurb", "describe\n\tthe\t widget", "v1"))

	// Word content still matters.
	assert.NotEqual(t, canonical, Fingerprint("blurb", "describe the gadget", "v1"))
}

func TestFingerprintSeparatesInputs(t *testing.T) {
	base := Fingerprint("blurb", "describe the widget", "v1")

	assert.NotEqual(t, base, Fingerprint("digest", "describe the widget", "v1"))
	assert.NotEqual(t, base, Fingerprint("blurb", "describe the widget", "v2"))

	// Field boundaries must hold even when concatenations collide.
	assert.NotEqual(t, Fingerprint("ab", "c", "v1"), Fingerprint("a", "bc", "v1"))
}
