package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skillstream/skillstream/internal/domain"
)

// Context holds the signed-in user for the lifetime of the process and keeps
// the persisted session record in sync with point awards.
type Context struct {
	repo   Repository
	logger *slog.Logger

	mu   sync.Mutex
	user *domain.User
}

// NewContext restores the session from the repository. A missing session is
// not an error; User returns nil until SignIn is called.
func NewContext(ctx context.Context, repo Repository, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	user, err := repo.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return &Context{repo: repo, logger: logger, user: user}, nil
}

// User returns a copy of the signed-in user, or nil when signed out.
func (c *Context) User() *domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// SignIn persists the user as the active session.
func (c *Context) SignIn(ctx context.Context, user *domain.User) error {
	if err := c.repo.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	c.mu.Lock()
	u := *user
	c.user = &u
	c.mu.Unlock()

	c.logger.Info("session started", "user_id", user.ID, "username", user.Username)
	return nil
}

// SignOut clears the persisted session.
func (c *Context) SignOut(ctx context.Context) error {
	if err := c.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	c.mu.Lock()
	c.user = nil
	c.mu.Unlock()
	return nil
}

// ApplyPoints awards a points delta to the signed-in user and persists the
// updated totals.
func (c *Context) ApplyPoints(ctx context.Context, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.user == nil {
		return fmt.Errorf("no signed-in user")
	}

	updated, err := c.repo.ApplyPoints(ctx, c.user.ID, delta)
	if err != nil {
		return err
	}

	prevLevel := c.user.Level
	c.user = updated
	if updated.Level > prevLevel {
		c.logger.Info("level up", "user_id", updated.ID, "level", updated.Level)
	}
	return nil
}
