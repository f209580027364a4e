package ldap

import (
	"fmt"
	"regexp"
	"strings"
)

// leadingOU matches the organizational-unit components at the front of an
// account suffix, e.g. ",ou=People" in ",ou=People,dc=example,dc=org".
var leadingOU = regexp.MustCompile(`^(,ou=[^,]+)+`)

// baseOU matches the organizational-unit components at the front of a
// base DN, e.g. "ou=People," in "ou=People,dc=example,dc=org".
var baseOU = regexp.MustCompile(`^(ou=[^,]+,)+`)

// UserObjectClasses returns the object classes written when a user entry
// is created under this dialect.
func (d Dialect) UserObjectClasses() []string {
	switch d {
	case DialectActiveDirectory:
		return []string{"top", "person", "organizationalPerson", "user"}
	default:
		return []string{"top", "person", "organizationalPerson", "inetOrgPerson"}
	}
}

// IsUserEntry reports whether the record represents a user under this
// dialect. Records without objectClass values are accepted: many servers
// withhold operational data from restricted binds, and rejecting those
// would fail every lookup on such deployments.
func (d Dialect) IsUserEntry(rec *Record) bool {
	if rec == nil {
		return false
	}
	if !rec.Has(AttrObjectClass) {
		return true
	}
	switch d {
	case DialectActiveDirectory:
		return rec.HasObjectClass("user")
	default:
		return rec.HasObjectClass("inetOrgPerson") || rec.HasObjectClass("person")
	}
}

// ForOrganizationalUnit derives the endpoint configuration for an
// alternate organizational unit. OpenLDAP endpoints carry the OU in the
// account suffix, so the existing OU components are replaced there;
// Active Directory endpoints scope searches by base DN instead.
func (d Dialect) ForOrganizationalUnit(cfg *EndpointConfig, ou string) *EndpointConfig {
	derived := cfg.Clone()
	escaped := EscapeDNValue(ou)
	switch d {
	case DialectOpenLDAP:
		suffix := leadingOU.ReplaceAllString(cfg.AccountSuffix, "")
		derived.AccountSuffix = fmt.Sprintf(",ou=%s%s", escaped, suffix)
	case DialectActiveDirectory:
		base := baseOU.ReplaceAllString(cfg.BaseDN, "")
		derived.BaseDN = fmt.Sprintf("ou=%s,%s", escaped, base)
	}
	return derived
}

// UserDN builds the distinguished name for a new user entry.
func (d Dialect) UserDN(username string, cfg *EndpointConfig) string {
	rdn := fmt.Sprintf("cn=%s", EscapeDNValue(username))
	base := strings.TrimPrefix(cfg.AccountSuffix, ",")
	if base == "" || d == DialectActiveDirectory {
		base = cfg.BaseDN
	}
	return fmt.Sprintf("%s,%s", rdn, base)
}
