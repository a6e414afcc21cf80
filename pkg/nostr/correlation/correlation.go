// Package correlation generates the ids that scope a REQ and every frame the
// relay sends back for it.
package correlation

import (
	"github.com/google/uuid"
	"lukechampine.com/frand"
)

// New returns a random version 4 UUID string.
func New() string {
	u, err := uuid.NewRandomFromReader(frand.Reader)
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

// NewLabelled prefixes a fresh id with label, which shows up in relay logs.
func NewLabelled(label string) string {
	if label == "" {
		return New()
	}
	return label + ":" + New()
}
