package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapgate/ldapgate/internal/ldap"
	"github.com/ldapgate/ldapgate/internal/ldap/ldaptest"
	"github.com/ldapgate/ldapgate/internal/store"
)

func newTestReconciler(t *testing.T, fake *ldaptest.Fake, cfg ReconcilerConfig) (*Reconciler, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	if cfg.DefaultIdentityEmail == "" {
		cfg.DefaultIdentityEmail = "default@user.com"
	}
	r := NewReconciler(fake, NewLookup(nil), db.Identities(), db.Profiles(), db.Roles(), cfg, nil)
	return r, db
}

func TestResolveCreatesIdentityWithCanonicalUsername(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())
	// The typed username matches cn; the canonical username comes from
	// uid.
	fake.Records = []*ldap.Record{
		userRecord("cn=jdoe,ou=People,dc=example,dc=org", map[ldap.Attribute][]string{
			ldap.AttrUID:  {"jdoe2"},
			ldap.AttrCN:   {"jdoe"},
			ldap.AttrMail: {"jdoe@example.org"},
		}),
	}

	r, db := newTestReconciler(t, fake, ReconcilerConfig{
		CreateMissing: true,
		DefaultRoles:  []string{"standard"},
	})
	_, err := db.CreateRole(ctx, "standard")
	require.NoError(t, err)

	identity, err := r.Resolve(ctx, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, "jdoe2", identity.Username)
	assert.Equal(t, "jdoe@example.org", identity.Email)
	require.NotNil(t, identity.ConfirmedAt)

	// The stored password is a random placeholder, never the directory
	// password.
	assert.NotEmpty(t, identity.PasswordHash)
	assert.False(t, store.VerifyPassword("s3cret", identity.PasswordHash))

	stored, err := db.Identities().FindByUsername(ctx, "jdoe2")
	require.NoError(t, err)
	require.Len(t, stored.Roles, 1)
	assert.Equal(t, "standard", stored.Roles[0].Name)

	profile, err := db.Profiles().FindByIdentity(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", profile.DisplayName)
}

func TestResolveReturnsExistingIdentity(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())
	fake.Records = []*ldap.Record{
		userRecord("uid=jdoe,ou=People,dc=example,dc=org", map[ldap.Attribute][]string{
			ldap.AttrUID: {"jdoe"},
		}),
	}

	r, db := newTestReconciler(t, fake, ReconcilerConfig{CreateMissing: true})
	existing := &store.Identity{Username: "jdoe", Email: "old@example.org"}
	require.NoError(t, db.Identities().Create(ctx, existing))

	identity, err := r.Resolve(ctx, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, identity.ID)
	assert.Equal(t, "old@example.org", identity.Email)
}

func TestResolveNoRemoteUser(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())

	r, _ := newTestReconciler(t, fake, ReconcilerConfig{CreateMissing: true})

	_, err := r.Resolve(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNoRemoteUser)
}

func TestResolveDefaultIdentity(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())
	fake.Records = []*ldap.Record{
		userRecord("uid=jdoe,ou=People,dc=example,dc=org", map[ldap.Attribute][]string{
			ldap.AttrUID: {"jdoe"},
		}),
	}

	r, db := newTestReconciler(t, fake, ReconcilerConfig{
		CreateMissing:     false,
		DefaultIdentityID: -1,
	})

	identity, err := r.Resolve(ctx, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), identity.ID)
	// The username is set on the returned value only.
	assert.Equal(t, "jdoe", identity.Username)

	stored, err := db.Identities().FindByID(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, "default", stored.Username)
	assert.Equal(t, "default@user.com", stored.Email)

	// A second login reuses the shared identity.
	again, err := r.Resolve(ctx, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), again.ID)
	assert.Equal(t, "jdoe", again.Username)
}

func TestResolveUnknownRoleIsFatal(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())
	fake.Records = []*ldap.Record{
		userRecord("uid=jdoe,ou=People,dc=example,dc=org", map[ldap.Attribute][]string{
			ldap.AttrUID: {"jdoe"},
		}),
	}

	r, _ := newTestReconciler(t, fake, ReconcilerConfig{
		CreateMissing: true,
		DefaultRoles:  []string{"missing"},
	})

	_, err := r.Resolve(ctx, "jdoe")
	assert.ErrorIs(t, err, store.ErrRoleNotFound)
}

func TestAssignOrderAndPartialFailure(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())

	r, db := newTestReconciler(t, fake, ReconcilerConfig{})
	_, err := db.CreateRole(ctx, "first")
	require.NoError(t, err)

	identity := &store.Identity{Username: "jdoe"}
	require.NoError(t, db.Identities().Create(ctx, identity))

	// The second role does not exist; the first stays granted.
	err = r.Assign(ctx, identity.ID, []string{"first", "second"})
	assert.ErrorIs(t, err, store.ErrRoleNotFound)

	stored, err := db.Identities().FindByUsername(ctx, "jdoe")
	require.NoError(t, err)
	require.Len(t, stored.Roles, 1)
	assert.Equal(t, "first", stored.Roles[0].Name)
}
