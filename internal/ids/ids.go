// Package ids generates identifiers.
package ids

import (
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// New returns a time-ordered id, suitable where lexical order should follow creation order.
func New() string {
	return ksuid.New().String()
}

// UUID returns a random entity id.
func UUID() string {
	return uuid.NewString()
}
