package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapgate/ldapgate/internal/ldap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ldapgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalYAML = `
primary:
  dialect: openldap
  host: ldap.example.org
  base_dn: dc=example,dc=org
  account_prefix: "uid="
  account_suffix: ",ou=People,dc=example,dc=org"
allow_password_recovery: true
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ldap.DialectOpenLDAP, cfg.Primary.Dialect)
	assert.Equal(t, "ldap.example.org", cfg.Primary.Host)

	// Defaults.
	assert.Equal(t, 389, cfg.Primary.Port)
	assert.Equal(t, 10*time.Second, cfg.Primary.Timeout)
	assert.Equal(t, 2, cfg.Primary.MaxRetries)
	assert.True(t, cfg.CreateLocalUsers)
	assert.Equal(t, int64(-1), cfg.DefaultIdentityID)
	assert.Equal(t, "default@user.com", cfg.DefaultIdentityEmail)
	assert.Equal(t, "ldapgate.db", cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Nil(t, cfg.Secondary)
}

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
primary:
  dialect: openldap
  host: ldap.example.org
  base_dn: dc=example,dc=org
  account_prefix: "uid="
  account_suffix: ",ou=People,dc=example,dc=org"
  bind_dn: cn=service,dc=example,dc=org
  bind_password: secret
secondary:
  dialect: activedirectory
  host: ad.corp.example.org
  port: 636
  base_dn: ou=Users,dc=corp,dc=example,dc=org
  use_tls: true
alternate_ous:
  - Contractors
  - Interns
create_local_users: false
default_roles: [standard, employee]
sync_to_secondary: true
allow_password_recovery: false
recovery_redirect_url: https://sso.example.org/password
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"Contractors", "Interns"}, cfg.AlternateOUs)
	assert.False(t, cfg.CreateLocalUsers)
	assert.Equal(t, []string{"standard", "employee"}, cfg.DefaultRoles)
	assert.True(t, cfg.SyncToSecondary)
	require.NotNil(t, cfg.Secondary)
	assert.Equal(t, ldap.DialectActiveDirectory, cfg.Secondary.Dialect)
	assert.Equal(t, 636, cfg.Secondary.Port)
	assert.True(t, cfg.Secondary.UseTLS)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing primary host",
			yaml: `
primary:
  dialect: openldap
  base_dn: dc=example,dc=org
  account_suffix: ",dc=example,dc=org"
allow_password_recovery: true
`,
		},
		{
			name: "openldap requires account suffix",
			yaml: `
primary:
  dialect: openldap
  host: ldap.example.org
  base_dn: dc=example,dc=org
allow_password_recovery: true
`,
		},
		{
			name: "unknown dialect",
			yaml: `
primary:
  dialect: novell
  host: ldap.example.org
  base_dn: dc=example,dc=org
allow_password_recovery: true
`,
		},
		{
			name: "recovery redirect required when recovery disallowed",
			yaml: `
primary:
  dialect: openldap
  host: ldap.example.org
  base_dn: dc=example,dc=org
  account_suffix: ",dc=example,dc=org"
allow_password_recovery: false
`,
		},
		{
			name: "bad log level",
			yaml: `
primary:
  dialect: openldap
  host: ldap.example.org
  base_dn: dc=example,dc=org
  account_suffix: ",dc=example,dc=org"
allow_password_recovery: true
log_level: loud
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("LDAPGATE_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
