package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForOrganizationalUnitOpenLDAP(t *testing.T) {
	cfg := &EndpointConfig{
		Dialect:       DialectOpenLDAP,
		Host:          "ldap.example.org",
		BaseDN:        "dc=example,dc=org",
		AccountPrefix: "uid=",
		AccountSuffix: ",ou=People,dc=example,dc=org",
	}

	derived := DialectOpenLDAP.ForOrganizationalUnit(cfg, "Contractors")

	assert.Equal(t, ",ou=Contractors,dc=example,dc=org", derived.AccountSuffix)
	assert.Equal(t, "dc=example,dc=org", derived.BaseDN)
	// The source configuration is never touched.
	assert.Equal(t, ",ou=People,dc=example,dc=org", cfg.AccountSuffix)
}

func TestForOrganizationalUnitOpenLDAPNestedOU(t *testing.T) {
	cfg := &EndpointConfig{
		Dialect:       DialectOpenLDAP,
		AccountSuffix: ",ou=Staff,ou=People,dc=example,dc=org",
	}

	derived := DialectOpenLDAP.ForOrganizationalUnit(cfg, "Contractors")
	assert.Equal(t, ",ou=Contractors,dc=example,dc=org", derived.AccountSuffix)
}

func TestForOrganizationalUnitActiveDirectory(t *testing.T) {
	cfg := &EndpointConfig{
		Dialect: DialectActiveDirectory,
		BaseDN:  "ou=Users,dc=corp,dc=example,dc=org",
	}

	derived := DialectActiveDirectory.ForOrganizationalUnit(cfg, "Contractors")

	assert.Equal(t, "ou=Contractors,dc=corp,dc=example,dc=org", derived.BaseDN)
	assert.Equal(t, "ou=Users,dc=corp,dc=example,dc=org", cfg.BaseDN)
}

func TestForOrganizationalUnitEscapesOU(t *testing.T) {
	cfg := &EndpointConfig{
		Dialect:       DialectOpenLDAP,
		AccountSuffix: ",dc=example,dc=org",
	}

	derived := DialectOpenLDAP.ForOrganizationalUnit(cfg, "R+D")
	assert.Equal(t, ",ou=R\\+D,dc=example,dc=org", derived.AccountSuffix)
}

func TestUserObjectClasses(t *testing.T) {
	assert.Equal(t,
		[]string{"top", "person", "organizationalPerson", "user"},
		DialectActiveDirectory.UserObjectClasses())
	assert.Equal(t,
		[]string{"top", "person", "organizationalPerson", "inetOrgPerson"},
		DialectOpenLDAP.UserObjectClasses())
}

func TestIsUserEntry(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		record  *Record
		want    bool
	}{
		{
			name:    "nil record",
			dialect: DialectOpenLDAP,
			record:  nil,
			want:    false,
		},
		{
			name:    "no object classes accepted",
			dialect: DialectOpenLDAP,
			record:  NewRecord("uid=jdoe,dc=example,dc=org", nil),
			want:    true,
		},
		{
			name:    "inetOrgPerson",
			dialect: DialectOpenLDAP,
			record: NewRecord("uid=jdoe,dc=example,dc=org", map[Attribute][]string{
				AttrObjectClass: {"top", "inetOrgPerson"},
			}),
			want: true,
		},
		{
			name:    "organizational unit is not a user",
			dialect: DialectOpenLDAP,
			record: NewRecord("ou=People,dc=example,dc=org", map[Attribute][]string{
				AttrObjectClass: {"top", "organizationalUnit"},
			}),
			want: false,
		},
		{
			name:    "ad user class",
			dialect: DialectActiveDirectory,
			record: NewRecord("cn=jdoe,dc=example,dc=org", map[Attribute][]string{
				AttrObjectClass: {"top", "person", "organizationalPerson", "user"},
			}),
			want: true,
		},
		{
			name:    "ad group is not a user",
			dialect: DialectActiveDirectory,
			record: NewRecord("cn=admins,dc=example,dc=org", map[Attribute][]string{
				AttrObjectClass: {"top", "group"},
			}),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.IsUserEntry(tt.record))
		})
	}
}

func TestUserDN(t *testing.T) {
	openldap := &EndpointConfig{
		Dialect:       DialectOpenLDAP,
		BaseDN:        "dc=example,dc=org",
		AccountSuffix: ",ou=People,dc=example,dc=org",
	}
	assert.Equal(t, "cn=jdoe,ou=People,dc=example,dc=org",
		DialectOpenLDAP.UserDN("jdoe", openldap))

	ad := &EndpointConfig{
		Dialect: DialectActiveDirectory,
		BaseDN:  "ou=Users,dc=corp,dc=example,dc=org",
	}
	assert.Equal(t, "cn=jdoe,ou=Users,dc=corp,dc=example,dc=org",
		DialectActiveDirectory.UserDN("jdoe", ad))

	assert.Equal(t, "cn=Doe\\, John,ou=People,dc=example,dc=org",
		DialectOpenLDAP.UserDN("Doe, John", openldap))
}
