// Package service holds the domain operations behind the HTTP handlers and the worker.
package service

import (
	"time"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/models"
)

// Caller is the authenticated subject on whose behalf an operation runs.
type Caller struct {
	SubjectID string
	Role      models.Role
}

func (c Caller) IsTherapist() bool {
	return c.Role == models.RoleTherapist
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// storeErr tags a store failure as an upstream error.
func storeErr(op string, err error) error {
	return apperr.Upstream(op, err)
}
