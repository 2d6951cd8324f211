// Package uuid generates random identifiers used for request IDs and
// anti-forgery tokens.
package uuid

import "github.com/google/uuid"

// New returns a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}
