package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the gorm-backed reference implementation. The Identities,
// Profiles and Roles accessors expose the store contracts.
type DB struct {
	db *gorm.DB
}

// Open connects to the sqlite database at path and migrates the schema.
// ":memory:" opens an in-memory database.
func Open(path string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.AutoMigrate(&Identity{}, &Profile{}, &Role{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Identities returns the identity store.
func (s *DB) Identities() IdentityStore {
	return identityStore{db: s.db}
}

// Profiles returns the profile store.
func (s *DB) Profiles() ProfileStore {
	return profileStore{db: s.db}
}

// Roles returns the role store.
func (s *DB) Roles() RoleStore {
	return roleStore{db: s.db}
}

// CreateRole inserts a role, for seeding and tests.
func (s *DB) CreateRole(ctx context.Context, name string) (*Role, error) {
	role := &Role{Name: name}
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		return nil, fmt.Errorf("creating role %q: %w", name, err)
	}
	return role, nil
}

type identityStore struct {
	db *gorm.DB
}

func (s identityStore) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	var identity Identity
	err := s.db.WithContext(ctx).Preload("Roles").Where("username = ?", username).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding identity %q: %w", username, err)
	}
	return &identity, nil
}

func (s identityStore) FindByID(ctx context.Context, id int64) (*Identity, error) {
	var identity Identity
	err := s.db.WithContext(ctx).Preload("Roles").First(&identity, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding identity %d: %w", id, err)
	}
	return &identity, nil
}

func (s identityStore) Create(ctx context.Context, identity *Identity) error {
	err := s.db.WithContext(ctx).Create(identity).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("creating identity %q: %w", identity.Username, err)
	}
	return nil
}

func (s identityStore) Save(ctx context.Context, identity *Identity) error {
	if err := s.db.WithContext(ctx).Omit("Roles").Save(identity).Error; err != nil {
		return fmt.Errorf("saving identity %q: %w", identity.Username, err)
	}
	return nil
}

type profileStore struct {
	db *gorm.DB
}

func (s profileStore) FindByIdentity(ctx context.Context, identityID int64) (*Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("identity_id = ?", identityID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding profile for identity %d: %w", identityID, err)
	}
	return &profile, nil
}

func (s profileStore) Save(ctx context.Context, profile *Profile) error {
	if err := s.db.WithContext(ctx).Save(profile).Error; err != nil {
		return fmt.Errorf("saving profile for identity %d: %w", profile.IdentityID, err)
	}
	return nil
}

type roleStore struct {
	db *gorm.DB
}

func (s roleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("finding role %q: %w", name, err)
	}
	return &role, nil
}

func (s roleStore) Assign(ctx context.Context, identityID int64, role *Role) error {
	assoc := s.db.WithContext(ctx).Model(&Identity{ID: identityID}).Association("Roles")
	if err := assoc.Append(role); err != nil {
		return fmt.Errorf("assigning role %q to identity %d: %w", role.Name, identityID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
