// Package session provides the persisted local user session and the explicit
// session context threaded through client operations.
package session

import (
	"context"

	"github.com/skillstream/skillstream/internal/domain"
)

// Repository defines the interface for persisting the local session record.
type Repository interface {
	// CurrentUser retrieves the persisted signed-in user, or nil if none.
	CurrentUser(ctx context.Context) (*domain.User, error)

	// SaveUser stores the signed-in user, replacing any previous session.
	SaveUser(ctx context.Context, user *domain.User) error

	// ApplyPoints adds a points delta to the persisted total and recomputes
	// the level, returning the updated record.
	ApplyPoints(ctx context.Context, userID string, delta int) (*domain.User, error)

	// Clear removes the persisted session.
	Clear(ctx context.Context) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
