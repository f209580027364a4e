package ldap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *EndpointConfig {
	return &EndpointConfig{
		Dialect:       DialectOpenLDAP,
		Host:          "ldap.example.org",
		Port:          389,
		BaseDN:        "dc=example,dc=org",
		Timeout:       10 * time.Second,
		AccountPrefix: "uid=",
		AccountSuffix: ",ou=People,dc=example,dc=org",
	}
}

func TestBindIdentifier(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "uid=jdoe,ou=People,dc=example,dc=org", cfg.BindIdentifier("jdoe"))

	bare := &EndpointConfig{}
	assert.Equal(t, "jdoe", bare.BindIdentifier("jdoe"))
}

func TestWithAccountPrefixCopies(t *testing.T) {
	cfg := validConfig()
	derived := cfg.WithAccountPrefix("cn=")

	assert.Equal(t, "cn=", derived.AccountPrefix)
	assert.Equal(t, "uid=", cfg.AccountPrefix)
	assert.Equal(t, cfg.AccountSuffix, derived.AccountSuffix)
}

func TestAddressAndURL(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "ldap.example.org:389", cfg.Address())
	assert.Equal(t, "ldap://ldap.example.org:389", cfg.URL())

	cfg.UseTLS = true
	cfg.Port = 636
	assert.Equal(t, "ldaps://ldap.example.org:636", cfg.URL())
}

func TestAuthMethodSelection(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, AuthMethodAnonymous, cfg.AuthMethod())

	cfg.BindDN = "cn=service,dc=example,dc=org"
	assert.Equal(t, AuthMethodSimpleBind, cfg.AuthMethod())

	cfg.KerberosRealm = "EXAMPLE.ORG"
	assert.Equal(t, AuthMethodKerberos, cfg.AuthMethod())
}

func TestAuthMethodString(t *testing.T) {
	assert.Equal(t, "anonymous", AuthMethodAnonymous.String())
	assert.Equal(t, "simple", AuthMethodSimpleBind.String())
	assert.Equal(t, "kerberos", AuthMethodKerberos.String())
}

func TestEndpointConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EndpointConfig)
		ok     bool
	}{
		{"valid", func(*EndpointConfig) {}, true},
		{"bad dialect", func(c *EndpointConfig) { c.Dialect = "novell" }, false},
		{"missing host", func(c *EndpointConfig) { c.Host = "" }, false},
		{"missing base dn", func(c *EndpointConfig) { c.BaseDN = "" }, false},
		{"openldap requires suffix", func(c *EndpointConfig) { c.AccountSuffix = "" }, false},
		{"ad without suffix", func(c *EndpointConfig) {
			c.Dialect = DialectActiveDirectory
			c.AccountSuffix = ""
		}, true},
		{"unknown identifying attribute", func(c *EndpointConfig) { c.IdentifyingAttribute = "memberOf" }, false},
		{"known identifying attribute", func(c *EndpointConfig) { c.IdentifyingAttribute = "sAMAccountName" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
