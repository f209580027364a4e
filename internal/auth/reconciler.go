package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-password/password"
	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/ldap"
	"github.com/ldapgate/ldapgate/internal/store"
)

// ErrNoRemoteUser reports that a verified username could not be located
// in the directory afterwards. Verification and reconciliation race
// against directory changes, so this is an integrity error, not a login
// failure.
var ErrNoRemoteUser = errors.New("no matching remote user")

// placeholderPasswordLength sizes the random password written to local
// identities created for directory users. The real password is never
// persisted locally; directory logins bind remotely every time.
const placeholderPasswordLength = 32

// ReconcilerConfig controls local identity creation.
type ReconcilerConfig struct {
	// CreateMissing enables creating a local identity for directory
	// users that have none. When false, the shared default identity is
	// used instead.
	CreateMissing bool

	// DefaultRoles are assigned to newly created identities, in order.
	DefaultRoles []string

	// DefaultIdentityID identifies the shared identity used when
	// CreateMissing is false.
	DefaultIdentityID int64

	// DefaultIdentityEmail is the email written when the shared default
	// identity is first created.
	DefaultIdentityEmail string
}

// Reconciler resolves a verified typed username to a local identity,
// creating one when configured to.
type Reconciler struct {
	primary    ldap.Directory
	lookup     *Lookup
	identities store.IdentityStore
	profiles   store.ProfileStore
	roles      store.RoleStore
	cfg        ReconcilerConfig
	log        *zap.Logger
}

// NewReconciler returns a Reconciler against the primary endpoint.
func NewReconciler(primary ldap.Directory, lookup *Lookup, identities store.IdentityStore, profiles store.ProfileStore, roles store.RoleStore, cfg ReconcilerConfig, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		primary:    primary,
		lookup:     lookup,
		identities: identities,
		profiles:   profiles,
		roles:      roles,
		cfg:        cfg,
		log:        log,
	}
}

// Resolve relocates the remote record for a verified username, derives
// the canonical username (the record's uid when present, the typed
// username otherwise), and returns the matching local identity. A
// missing identity is created when CreateMissing is set; otherwise the
// shared default identity is returned with its username set in memory
// only.
func (r *Reconciler) Resolve(ctx context.Context, typedUsername string) (*store.Identity, error) {
	record, err := r.lookup.FindByFallback(ctx, r.primary, typedUsername)
	if err != nil {
		if errors.Is(err, ldap.ErrNotFound) || errors.Is(err, ldap.ErrUnexpectedEntryType) {
			return nil, fmt.Errorf("%w: %s", ErrNoRemoteUser, typedUsername)
		}
		return nil, err
	}

	username := typedUsername
	if uid, ok := record.First(ldap.AttrUID); ok {
		username = uid
	}

	identity, err := r.identities.FindByUsername(ctx, username)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if !r.cfg.CreateMissing {
		return r.defaultIdentity(ctx, username)
	}
	return r.createIdentity(ctx, username, record)
}

// Assign grants the named roles to an identity, in configuration order.
// An unknown role name is fatal; roles granted before the failure stay
// granted.
func (r *Reconciler) Assign(ctx context.Context, identityID int64, roleNames []string) error {
	for _, name := range roleNames {
		role, err := r.roles.FindByName(ctx, name)
		if err != nil {
			return err
		}
		if err := r.roles.Assign(ctx, identityID, role); err != nil {
			return err
		}
	}
	return nil
}

// createIdentity provisions a local identity from the remote record. The
// stored password is a random placeholder, never the directory password.
func (r *Reconciler) createIdentity(ctx context.Context, username string, record *ldap.Record) (*store.Identity, error) {
	placeholder, err := password.Generate(placeholderPasswordLength, 8, 8, false, false)
	if err != nil {
		return nil, fmt.Errorf("generating placeholder password: %w", err)
	}
	hash, err := store.HashPassword(placeholder)
	if err != nil {
		return nil, fmt.Errorf("hashing placeholder password: %w", err)
	}

	email, _ := record.First(ldap.AttrMail)
	now := time.Now()
	identity := &store.Identity{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		ConfirmedAt:  &now,
	}

	if err := r.identities.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("creating local identity %q: %w", username, err)
	}

	if displayName, ok := record.First(ldap.AttrCN); ok {
		profile := &store.Profile{IdentityID: identity.ID, DisplayName: displayName}
		if err := r.profiles.Save(ctx, profile); err != nil {
			r.log.Warn("saving profile failed",
				zap.String("username", username),
				zap.Error(err))
		}
	}

	if err := r.Assign(ctx, identity.ID, r.cfg.DefaultRoles); err != nil {
		return nil, err
	}

	r.log.Info("local identity created for directory user",
		zap.String("username", username))
	return identity, nil
}

// defaultIdentity loads the shared default identity, creating it on
// first use. The caller's username is set on the returned value in
// memory only; the stored record keeps its own username. Roles are
// assigned at creation time only.
func (r *Reconciler) defaultIdentity(ctx context.Context, username string) (*store.Identity, error) {
	identity, err := r.identities.FindByID(ctx, r.cfg.DefaultIdentityID)
	if err == nil {
		identity.Username = username
		return identity, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	placeholder, err := password.Generate(placeholderPasswordLength, 8, 8, false, false)
	if err != nil {
		return nil, fmt.Errorf("generating placeholder password: %w", err)
	}
	hash, err := store.HashPassword(placeholder)
	if err != nil {
		return nil, fmt.Errorf("hashing placeholder password: %w", err)
	}

	now := time.Now()
	identity = &store.Identity{
		ID:           r.cfg.DefaultIdentityID,
		Username:     "default",
		Email:        r.cfg.DefaultIdentityEmail,
		PasswordHash: hash,
		ConfirmedAt:  &now,
	}
	if err := r.identities.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("creating default identity: %w", err)
	}
	if err := r.Assign(ctx, identity.ID, r.cfg.DefaultRoles); err != nil {
		return nil, err
	}

	identity.Username = username
	return identity, nil
}
