package ldap

import (
	"context"
	"fmt"
	"time"
)

// Dialect selects the schema conventions of a directory server.
type Dialect string

const (
	DialectActiveDirectory Dialect = "activedirectory"
	DialectOpenLDAP        Dialect = "openldap"
)

// Valid reports whether d is a supported dialect.
func (d Dialect) Valid() bool {
	return d == DialectActiveDirectory || d == DialectOpenLDAP
}

// AuthMethod defines how the service session authenticates to an endpoint.
type AuthMethod int

const (
	AuthMethodAnonymous  AuthMethod = iota // no service credentials configured
	AuthMethodSimpleBind                   // bind DN + password
	AuthMethodKerberos                     // GSSAPI
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodAnonymous:
		return "anonymous"
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	default:
		return "unknown"
	}
}

// EndpointConfig holds the configuration of one directory endpoint.
// A deployment has one primary endpoint, a derived endpoint per alternate
// organizational unit, and a secondary endpoint used as the sync target
// (defaulting to the primary). Values are immutable after startup; every
// derived configuration goes through Clone.
type EndpointConfig struct {
	// Schema dialect, required.
	Dialect Dialect `mapstructure:"dialect" validate:"required"`

	// Connection settings.
	Host    string        `mapstructure:"host" validate:"required"`
	Port    int           `mapstructure:"port" default:"389"`
	BaseDN  string        `mapstructure:"base_dn" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" default:"10s"`

	// Account template: the fragments wrapped around a username to form a
	// bind identifier, e.g. prefix "uid=" and suffix ",ou=People,dc=example,dc=org".
	// OpenLDAP endpoints require a suffix.
	AccountPrefix string `mapstructure:"account_prefix"`
	AccountSuffix string `mapstructure:"account_suffix"`

	// Service credentials for the long-lived session. When KerberosRealm is
	// set the session binds via GSSAPI, otherwise a simple bind with
	// BindDN/BindPassword, otherwise anonymous.
	BindDN         string `mapstructure:"bind_dn"`
	BindPassword   string `mapstructure:"bind_password"`
	KerberosRealm  string `mapstructure:"kerberos_realm"`
	KerberosKeytab string `mapstructure:"kerberos_keytab"`
	KerberosCCache string `mapstructure:"kerberos_ccache"`
	KerberosConfig string `mapstructure:"kerberos_config"`
	KerberosSPN    string `mapstructure:"kerberos_spn"`

	// TLS settings.
	UseTLS             bool   `mapstructure:"use_tls"`
	StartTLS           bool   `mapstructure:"start_tls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	CACertFile         string `mapstructure:"ca_cert_file"`

	// IdentifyingAttribute overrides the equality key used by user lookups.
	// When set, searches compare this attribute instead of the one the
	// caller passed; the fallback loops still iterate their candidate list.
	IdentifyingAttribute string `mapstructure:"identifying_attribute"`

	// Retry settings for retryable directory errors on service operations.
	MaxRetries     int           `mapstructure:"max_retries" default:"2"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" default:"500ms"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" default:"5s"`
	BackoffFactor  float64       `mapstructure:"backoff_factor" default:"2.0"`
}

// Clone returns a deep copy of the configuration.
func (c *EndpointConfig) Clone() *EndpointConfig {
	clone := *c
	return &clone
}

// WithAccountPrefix returns a copy of the configuration with the account
// prefix replaced, for prefix-rediscovery rebinds.
func (c *EndpointConfig) WithAccountPrefix(prefix string) *EndpointConfig {
	clone := c.Clone()
	clone.AccountPrefix = prefix
	return clone
}

// BindIdentifier builds the bind identifier for a username from the
// configured account template.
func (c *EndpointConfig) BindIdentifier(username string) string {
	return c.AccountPrefix + username + c.AccountSuffix
}

// Address returns the host:port of the endpoint.
func (c *EndpointConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL returns the endpoint as an LDAP URL, ldaps when UseTLS is set.
func (c *EndpointConfig) URL() string {
	scheme := "ldap"
	if c.UseTLS {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Address())
}

// AuthMethod determines the service authentication method from the
// configuration. Kerberos takes precedence over simple bind.
func (c *EndpointConfig) AuthMethod() AuthMethod {
	if c.KerberosRealm != "" {
		return AuthMethodKerberos
	}
	if c.BindDN != "" {
		return AuthMethodSimpleBind
	}
	return AuthMethodAnonymous
}

// Validate checks dialect-specific configuration constraints.
func (c *EndpointConfig) Validate() error {
	if !c.Dialect.Valid() {
		return fmt.Errorf("unsupported dialect %q", c.Dialect)
	}
	if c.Host == "" {
		return fmt.Errorf("host must be set")
	}
	if c.BaseDN == "" {
		return fmt.Errorf("base_dn must be set")
	}
	if c.Dialect == DialectOpenLDAP && c.AccountSuffix == "" {
		return fmt.Errorf("the %s dialect requires an account suffix", DialectOpenLDAP)
	}
	if c.IdentifyingAttribute != "" {
		if _, ok := NormalizeAttribute(c.IdentifyingAttribute); !ok {
			return fmt.Errorf("unknown identifying attribute %q", c.IdentifyingAttribute)
		}
	}
	return nil
}

// SearchRequest encapsulates a subtree equality search.
type SearchRequest struct {
	BaseDN     string // defaults to the endpoint base DN
	Filter     string
	Attributes []string
	SizeLimit  int
}

// AddRequest encapsulates entry creation.
type AddRequest struct {
	DN         string
	Attributes map[Attribute][]string
}

// ModifyRequest encapsulates attribute replacement on an entry.
type ModifyRequest struct {
	DN                string
	ReplaceAttributes map[Attribute][]string
}

// RenameRequest encapsulates changing an entry's relative distinguished name.
type RenameRequest struct {
	DN           string
	NewRDN       string
	DeleteOldRDN bool
}

// Directory is the operation surface a bound directory session exposes.
// Conn is the production implementation; tests substitute fakes.
type Directory interface {
	// Config returns the endpoint configuration of the session.
	Config() *EndpointConfig

	// BindAs attempts to authenticate the given identifier and password
	// against the endpoint on a short-lived connection. The service
	// session is left untouched.
	BindAs(ctx context.Context, identifier, password string) error

	// Search runs a subtree search and returns the matching user records.
	Search(ctx context.Context, req *SearchRequest) ([]*Record, error)

	// Add creates a new entry.
	Add(ctx context.Context, req *AddRequest) error

	// Modify replaces attributes on an existing entry.
	Modify(ctx context.Context, req *ModifyRequest) error

	// Rename changes an entry's relative distinguished name.
	Rename(ctx context.Context, req *RenameRequest) error

	// Delete removes an entry.
	Delete(ctx context.Context, dn string) error

	// WithAccountPrefix returns a new bound session whose configuration
	// carries the given account prefix. The receiver is not modified.
	// The caller must Close the returned session.
	WithAccountPrefix(ctx context.Context, prefix string) (Directory, error)

	// Ping verifies connectivity with a root DSE read.
	Ping(ctx context.Context) error

	// Close releases the session.
	Close() error
}
