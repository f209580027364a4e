package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapgate/ldapgate/internal/ldap"
	"github.com/ldapgate/ldapgate/internal/ldap/ldaptest"
)

func newVerifier(dirs ...ldap.Directory) *Verifier {
	return NewVerifier(dirs, NewLookup(nil), nil)
}

func TestVerifyAbstainsOnEmptyCredentials(t *testing.T) {
	ctx := context.Background()
	v := newVerifier(ldaptest.New(openldapConfig()))

	_, err := v.Verify(ctx, "", "s3cret")
	assert.ErrorIs(t, err, ErrAbstain)

	_, err = v.Verify(ctx, "jdoe", "")
	assert.ErrorIs(t, err, ErrAbstain)
}

func TestVerifyDirectBind(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())
	fake.Passwords["uid=jdoe,ou=People,dc=example,dc=org"] = "s3cret"

	ok, err := newVerifier(fake).Verify(ctx, "jdoe", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())
	fake.Passwords["uid=jdoe,ou=People,dc=example,dc=org"] = "s3cret"

	ok, err := newVerifier(fake).Verify(ctx, "jdoe", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPrefixRediscovery(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())
	// The entry binds on cn, not the configured uid prefix.
	fake.Records = []*ldap.Record{
		userRecord("cn=jdoe,ou=People,dc=example,dc=org", map[ldap.Attribute][]string{
			ldap.AttrCN: {"jdoe"},
		}),
	}
	fake.Passwords["cn=jdoe,ou=People,dc=example,dc=org"] = "s3cret"

	ok, err := newVerifier(fake).Verify(ctx, "jdoe", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	// The discovery went through a derived session with the rediscovered
	// prefix; the original configuration is untouched.
	assert.Equal(t, []string{"cn="}, fake.Prefixes)
	assert.Equal(t, "uid=", fake.Cfg.AccountPrefix)
	assert.Equal(t, ",ou=People,dc=example,dc=org", fake.Cfg.AccountSuffix)
}

func TestVerifyAlternateOrganizationalUnit(t *testing.T) {
	ctx := context.Background()

	primary := ldaptest.New(openldapConfig())

	altCfg := ldap.DialectOpenLDAP.ForOrganizationalUnit(openldapConfig(), "Contractors")
	alt := ldaptest.New(altCfg)
	alt.Passwords["uid=kfox,ou=Contractors,dc=example,dc=org"] = "s3cret"

	ok, err := newVerifier(primary, alt).Verify(ctx, "kfox", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	// The primary endpoint was tried first and rejected the login.
	assert.NotEmpty(t, primary.BindAttempts)
}

func TestVerifyShortCircuitsOnFirstSuccess(t *testing.T) {
	ctx := context.Background()

	primary := ldaptest.New(openldapConfig())
	primary.Passwords["uid=jdoe,ou=People,dc=example,dc=org"] = "s3cret"

	alt := ldaptest.New(ldap.DialectOpenLDAP.ForOrganizationalUnit(openldapConfig(), "Contractors"))

	ok, err := newVerifier(primary, alt).Verify(ctx, "jdoe", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, alt.BindAttempts)
}

func TestVerifyPropagatesAmbiguousMatch(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())
	fake.Records = []*ldap.Record{
		userRecord("uid=jdoe,ou=People,dc=example,dc=org", map[ldap.Attribute][]string{
			ldap.AttrUID: {"jdoe"},
		}),
		userRecord("uid=jdoe,ou=Contractors,dc=example,dc=org", map[ldap.Attribute][]string{
			ldap.AttrUID: {"jdoe"},
		}),
	}

	_, err := newVerifier(fake).Verify(ctx, "jdoe", "s3cret")
	assert.ErrorIs(t, err, ldap.ErrMultipleMatches)
}

func TestVerifyPropagatesConnectionError(t *testing.T) {
	ctx := context.Background()
	fake := ldaptest.New(openldapConfig())
	fake.BindErr = &ldap.DirectoryError{
		Operation: "user_bind",
		Category:  ldap.ErrorCategoryConnection,
		Message:   "connection refused",
		Retryable: true,
	}

	_, err := newVerifier(fake).Verify(ctx, "jdoe", "s3cret")
	require.Error(t, err)
	assert.True(t, ldap.IsConnectionError(err))
}
