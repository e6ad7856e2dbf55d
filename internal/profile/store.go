package profile

import (
	"context"

	"campusportal/internal/model"
)

// Store is the profile side of the backend. Lookups that find nothing return
// an error matching operations.ErrNotFound; any other error is treated as
// transient I/O.
type Store interface {
	FindByAuthID(ctx context.Context, role model.Role, authID string) (model.Profile, error)
	// FindByEmail matches case-insensitively and returns the newest record first.
	FindByEmail(ctx context.Context, role model.Role, email string) ([]model.Profile, error)
	LinkAuthID(ctx context.Context, role model.Role, profileID, authID string) error
}
