// Package store persists claims. Every implementation honours the same
// contract:
//   - Create returns sentinel.ErrConflict when the id already exists
//   - FindByID and Update return sentinel.ErrNotFound for unknown ids
//   - Update runs fn on a fresh copy under per-id exclusion and persists the
//     result only when fn returns nil; fn's error is returned unchanged
//   - ListByHolder returns newest first
package store

import (
	"zkcred/internal/claims/models"
)

// UpdateFunc mutates a claim inside a conditional update.
type UpdateFunc func(claim *models.Claim) error
