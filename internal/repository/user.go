package repository

import (
	"context"
	"errors"

	"modular-auth/internal/domain"
)

var (
	// ErrNotFound is returned when the requested user or group does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique username, email or group name is already taken.
	ErrConflict = errors.New("already exists")
	// ErrNotSupported is returned by backends that cannot perform an operation.
	ErrNotSupported = errors.New("operation not supported by storage backend")
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error
	Update(ctx context.Context, user *domain.User) error
	SetActive(ctx context.Context, username string, active bool, by string) error
	List(ctx context.Context) ([]domain.User, error)
}

// GroupRepository manages permission groups and user membership.
type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) (int64, error)
	List(ctx context.Context) ([]domain.Group, error)
	// Exists reports whether users can be added to the named group.
	Exists(ctx context.Context, name string) (bool, error)
	SetActive(ctx context.Context, name string, active bool, by string) error
	AddUser(ctx context.Context, username, group string) error
	RemoveUser(ctx context.Context, username, group string) error
	// UserGroups lists the names of the active groups the user belongs to.
	UserGroups(ctx context.Context, username string) ([]string, error)
}
