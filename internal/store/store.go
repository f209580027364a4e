// Package store defines the local identity persistence contracts and a
// gorm-backed reference implementation. The authentication core depends
// only on the interfaces; hosts may substitute their own stores.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports that no record matched the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrRoleNotFound reports that a configured role name does not exist.
	// Role assignment treats this as fatal.
	ErrRoleNotFound = errors.New("role not found")

	// ErrDuplicateUsername reports a violation of the one-identity-per-
	// username invariant.
	ErrDuplicateUsername = errors.New("username already taken")
)

// Identity is a local user record. At most one identity exists per
// username.
type Identity struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:190"`
	Email        string `gorm:"size:190"`
	PasswordHash string
	ConfirmedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Roles []Role `gorm:"many2many:identity_roles"`
}

// Profile carries the non-credential attributes of an identity.
type Profile struct {
	ID          int64  `gorm:"primaryKey"`
	IdentityID  int64  `gorm:"uniqueIndex"`
	DisplayName string `gorm:"size:190"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role is a named authorization role.
type Role struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:190"`
	CreatedAt time.Time
}

// IdentityStore persists identities.
type IdentityStore interface {
	// FindByUsername returns the identity with the given username,
	// ErrNotFound when absent.
	FindByUsername(ctx context.Context, username string) (*Identity, error)

	// FindByID returns the identity with the given ID, ErrNotFound when
	// absent.
	FindByID(ctx context.Context, id int64) (*Identity, error)

	// Create inserts a new identity. ErrDuplicateUsername on a username
	// collision.
	Create(ctx context.Context, identity *Identity) error

	// Save persists changes to an existing identity.
	Save(ctx context.Context, identity *Identity) error
}

// ProfileStore persists identity profiles.
type ProfileStore interface {
	// FindByIdentity returns the profile of an identity, ErrNotFound
	// when absent.
	FindByIdentity(ctx context.Context, identityID int64) (*Profile, error)

	// Save inserts or updates a profile.
	Save(ctx context.Context, profile *Profile) error
}

// RoleStore resolves and assigns roles.
type RoleStore interface {
	// FindByName returns the role with the given name, ErrRoleNotFound
	// when absent.
	FindByName(ctx context.Context, name string) (*Role, error)

	// Assign grants the role to an identity. Granting an already-held
	// role is a no-op.
	Assign(ctx context.Context, identityID int64, role *Role) error
}
