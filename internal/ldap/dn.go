package ldap

import (
	"fmt"
	"strings"

	ldaplib "github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes special characters in a DN attribute value
// according to RFC 4514: the characters , + " \ < > ; anywhere, a leading
// #, leading and trailing spaces, and NULL bytes as \00.
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var result strings.Builder
	result.Grow(len(value) + 8)

	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';':
			result.WriteRune('\\')
			result.WriteRune(r)
		case '#':
			if i == 0 {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case ' ':
			if i == 0 || i == len(value)-1 {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case 0:
			result.WriteString("\\00")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// EscapeFilterValue escapes a value for use inside a search filter
// (RFC 4515).
func EscapeFilterValue(value string) string {
	return ldaplib.EscapeFilter(value)
}

// RDNAttributeForSuffix derives the naming attribute of an entry from its
// distinguished name and the account suffix of the endpoint that found
// it. The DN must end with the suffix (compared case-insensitively);
// whatever single RDN remains in front names the attribute the server
// actually binds on, which may differ from the configured account prefix.
func RDNAttributeForSuffix(dn, suffix string) (Attribute, error) {
	if dn == "" {
		return "", fmt.Errorf("empty DN")
	}
	if suffix == "" || !strings.HasSuffix(strings.ToLower(dn), strings.ToLower(suffix)) {
		return "", fmt.Errorf("DN %q does not end with account suffix %q", dn, suffix)
	}

	head := dn[:len(dn)-len(suffix)]
	parsed, err := ldaplib.ParseDN(head)
	if err != nil {
		return "", fmt.Errorf("parsing RDN %q: %w", head, err)
	}
	if len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return "", fmt.Errorf("DN %q has no RDN before suffix %q", dn, suffix)
	}

	name := parsed.RDNs[0].Attributes[0].Type
	attr, ok := NormalizeAttribute(name)
	if !ok {
		return "", fmt.Errorf("unsupported RDN attribute %q in %q", name, dn)
	}
	return attr, nil
}

// FirstRDN returns the attribute name and value of the leading RDN of a
// DN.
func FirstRDN(dn string) (name, value string, err error) {
	parsed, err := ldaplib.ParseDN(dn)
	if err != nil {
		return "", "", fmt.Errorf("parsing DN %q: %w", dn, err)
	}
	if len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return "", "", fmt.Errorf("DN %q has no RDN", dn)
	}
	attr := parsed.RDNs[0].Attributes[0]
	return attr.Type, attr.Value, nil
}
