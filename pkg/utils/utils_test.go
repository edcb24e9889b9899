package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateStreamIDUnique(t *testing.T) {
	a := GenerateStreamID()
	b := GenerateStreamID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "stream-")
}

func TestGenerateSessionIDUnique(t *testing.T) {
	a := GenerateSessionID()
	b := GenerateSessionID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "sess-")
}

func TestMaskSensitive(t *testing.T) {
	assert.Equal(t, "abcd****", MaskSensitive("abcdefgh", 4))
	assert.Equal(t, "****", MaskSensitive("ab", 4))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello world", SanitizeString("  hello world  "))
	assert.Equal(t, "ab", SanitizeString("a\x00b"))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty("   "))
	assert.False(t, IsEmpty("x"))
}

func TestNowMs(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := Now
	defer func() { Now = old }()
	Now = func() time.Time { return fixed }

	assert.Equal(t, fixed.UnixMilli(), NowMs())
}
