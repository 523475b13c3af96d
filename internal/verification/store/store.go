// Package store persists verification sessions. Every implementation honours
// the same contract:
//   - Create returns sentinel.ErrConflict when the id already exists
//   - FindByID and Update return sentinel.ErrNotFound for unknown ids
//   - Update runs fn on a fresh copy under per-id exclusion and persists the
//     result only when fn returns nil; fn's error is returned unchanged
//   - ListExpired returns pending sessions whose expiry is at or before now,
//     oldest expiry first
package store

import (
	"zkcred/internal/verification/models"
)

// UpdateFunc mutates a session inside a conditional update.
type UpdateFunc func(session *models.Session) error
