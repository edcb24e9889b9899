// Package validation holds small shape checks; the HTTP adapter uses
// ValidateStreamID. Kept deliberately small since StreamId/SessionId are
// opaque strings with no format constraint of their own.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ValidateStreamID checks only that the id is non-empty and at most 256
// bytes long. No character-set restriction is implied.
func ValidateStreamID(streamID string) error {
	if streamID == "" {
		return fmt.Errorf("stream id is required")
	}
	if len(streamID) > 256 {
		return fmt.Errorf("stream id is too long (max 256 characters)")
	}
	return nil
}

// ValidateSessionID applies the same opaque-string constraint as stream ids.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(sessionID) > 256 {
		return fmt.Errorf("session id is too long (max 256 characters)")
	}
	return nil
}

// ValidateURL checks a cascade source/destination URL.
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that s is not empty after trimming.
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates s has a rune length within [min, max].
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
