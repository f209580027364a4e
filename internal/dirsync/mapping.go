// Package dirsync mirrors local identity lifecycle events to a
// secondary directory: backfill after directory logins, entry creation,
// attribute and password updates, renames, and deletion.
package dirsync

import (
	"github.com/ldapgate/ldapgate/internal/ldap"
	"github.com/ldapgate/ldapgate/internal/store"
)

// Field names a local identity field an attribute maps to.
type Field string

const (
	FieldUsername Field = "username"
	FieldEmail    Field = "email"
)

// AttributeMapping maps directory attributes to local identity fields.
// The same table drives entry creation and staged updates.
type AttributeMapping map[ldap.Attribute]Field

// DefaultMapping returns the standard mapping: sn and uid carry the
// username, mail carries the email.
func DefaultMapping() AttributeMapping {
	return AttributeMapping{
		ldap.AttrSN:   FieldUsername,
		ldap.AttrUID:  FieldUsername,
		ldap.AttrMail: FieldEmail,
	}
}

// fieldValue reads the mapped field off an identity.
func fieldValue(identity *store.Identity, field Field) string {
	switch field {
	case FieldUsername:
		return identity.Username
	case FieldEmail:
		return identity.Email
	default:
		return ""
	}
}

// Apply materializes the mapped attribute values for an identity.
// Attributes whose field is empty are omitted.
func (m AttributeMapping) Apply(identity *store.Identity) map[ldap.Attribute][]string {
	attrs := make(map[ldap.Attribute][]string, len(m))
	for attr, field := range m {
		if value := fieldValue(identity, field); value != "" {
			attrs[attr] = []string{value}
		}
	}
	return attrs
}

// Changed returns the mapped attributes whose current remote value
// differs from the identity's field, staged for replacement.
func (m AttributeMapping) Changed(identity *store.Identity, record *ldap.Record) map[ldap.Attribute][]string {
	changed := make(map[ldap.Attribute][]string)
	for attr, field := range m {
		value := fieldValue(identity, field)
		if value == "" {
			continue
		}
		if current, ok := record.First(attr); !ok || current != value {
			changed[attr] = []string{value}
		}
	}
	return changed
}
