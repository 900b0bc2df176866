package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string. It names requests that arrive
// without a usable X-Request-Id and archive queue consumers.
func NewID() string {
	return uuid.NewString()
}
