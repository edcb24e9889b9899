package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStreamID(t *testing.T) {
	assert.NoError(t, ValidateStreamID("room1"))
	assert.NoError(t, ValidateStreamID("Room-1_weird.but.opaque"))
	assert.Error(t, ValidateStreamID(""))
	assert.Error(t, ValidateStreamID(strings.Repeat("a", 257)))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://example.com/whep/room1"))
	assert.Error(t, ValidateURL(""))
	assert.Error(t, ValidateURL("not-a-url"))
	assert.Error(t, ValidateURL("ftp://example.com"))
}

func TestValidateNonEmptyString(t *testing.T) {
	assert.NoError(t, ValidateNonEmptyString("x", "field"))
	assert.Error(t, ValidateNonEmptyString("  ", "field"))
}

func TestValidateStringLength(t *testing.T) {
	assert.NoError(t, ValidateStringLength("abc", 1, 5, "field"))
	assert.Error(t, ValidateStringLength("", 1, 5, "field"))
	assert.Error(t, ValidateStringLength("abcdef", 1, 5, "field"))
}
