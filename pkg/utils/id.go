package utils

import "github.com/google/uuid"

// GenerateStreamID generates an id for an auto-created stream.
func GenerateStreamID() string {
	return "stream-" + uuid.NewString()
}

// GenerateSessionID generates an id for a new publish/subscribe session.
func GenerateSessionID() string {
	return "sess-" + uuid.NewString()
}
