package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/carehq/care/internal/platform/auth"
)

var ErrNotFound = errors.New("user not found")

// Repository defines the persistence interface for user accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Loader resolves token subjects to principals. Inactive accounts are
// treated as unknown.
type Loader struct {
	repo Repository
}

func NewLoader(repo Repository) *Loader {
	return &Loader{repo: repo}
}

func (l *Loader) LoadPrincipal(ctx context.Context, username string) (*auth.Principal, error) {
	u, err := l.repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("load user %q: %w", username, err)
	}
	if !u.IsActive {
		return nil, auth.ErrUnknownUser
	}
	return u.Principal(), nil
}
