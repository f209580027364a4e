package ldap

import (
	"fmt"
	"os"
	"strings"

	ldaplib "github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// kerberosBind performs a GSSAPI bind for the service session. The
// principal comes from BindDN (a plain principal name for Kerberos
// endpoints, optionally realm-qualified with @).
func kerberosBind(conn *ldaplib.Conn, cfg *EndpointConfig) error {
	principal, realm, err := kerberosPrincipal(cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, err := newGSSAPIClient(cfg, principal, realm)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn := cfg.KerberosSPN
	if spn == "" {
		spn = fmt.Sprintf("ldap/%s", cfg.Host)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}
	return nil
}

// kerberosPrincipal resolves the service principal and realm. A realm
// embedded in the principal (user@REALM) overrides the configured one.
func kerberosPrincipal(cfg *EndpointConfig) (principal, realm string, err error) {
	principal = cfg.BindDN
	realm = cfg.KerberosRealm

	if at := strings.Index(principal, "@"); at != -1 {
		realm = principal[at+1:]
		principal = principal[:at]
	}

	if realm == "" {
		return "", "", fmt.Errorf("kerberos realm is required (set kerberos_realm or include realm in the principal)")
	}
	if principal == "" && cfg.KerberosCCache == "" && !fileExists(defaultCCachePath()) {
		return "", "", fmt.Errorf("principal is required for keytab or password authentication")
	}
	return principal, realm, nil
}

// newGSSAPIClient builds a GSSAPI client from the available credentials.
// Priority order: explicit credential cache, default credential cache,
// explicit keytab, default keytab, password.
func newGSSAPIClient(cfg *EndpointConfig, principal, realm string) (ldaplib.GSSAPIClient, error) {
	krb5conf := cfg.KerberosConfig
	if krb5conf == "" {
		krb5conf = "/etc/krb5.conf"
	}
	if !fileExists(krb5conf) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s (set kerberos_config to override)", krb5conf)
	}

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if ccache := defaultCCachePath(); fileExists(ccache) {
		return gssapi.NewClientFromCCache(ccache, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		return gssapi.NewClientWithKeytab(principal, realm, cfg.KerberosKeytab, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if principal != "" {
		if keytab := defaultKeytabPath(); fileExists(keytab) {
			return gssapi.NewClientWithKeytab(principal, realm, keytab, krb5conf, krb5client.DisablePAFXFAST(true))
		}
	}

	if principal != "" && cfg.BindPassword != "" {
		return gssapi.NewClientWithPassword(principal, realm, cfg.BindPassword, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// defaultCCachePath returns the default credential cache location.
func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// defaultKeytabPath returns the default keytab location.
func defaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return strings.TrimPrefix(keytab, "FILE:")
	}
	return "/etc/krb5.keytab"
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}
