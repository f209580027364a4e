package dirsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ldapgate/ldapgate/internal/ldap"
	"github.com/ldapgate/ldapgate/internal/store"
)

func TestDefaultMappingApply(t *testing.T) {
	identity := &store.Identity{Username: "jdoe", Email: "jdoe@example.org"}

	attrs := DefaultMapping().Apply(identity)

	assert.Equal(t, []string{"jdoe"}, attrs[ldap.AttrSN])
	assert.Equal(t, []string{"jdoe"}, attrs[ldap.AttrUID])
	assert.Equal(t, []string{"jdoe@example.org"}, attrs[ldap.AttrMail])
}

func TestApplyOmitsEmptyFields(t *testing.T) {
	identity := &store.Identity{Username: "jdoe"}

	attrs := DefaultMapping().Apply(identity)

	assert.Contains(t, attrs, ldap.AttrUID)
	assert.NotContains(t, attrs, ldap.AttrMail)
}

func TestChanged(t *testing.T) {
	identity := &store.Identity{Username: "jdoe", Email: "new@example.org"}
	record := ldap.NewRecord("uid=jdoe,dc=example,dc=org", map[ldap.Attribute][]string{
		ldap.AttrUID:  {"jdoe"},
		ldap.AttrSN:   {"jdoe"},
		ldap.AttrMail: {"old@example.org"},
	})

	changed := DefaultMapping().Changed(identity, record)

	assert.Equal(t, map[ldap.Attribute][]string{
		ldap.AttrMail: {"new@example.org"},
	}, changed)
}

func TestChangedNothing(t *testing.T) {
	identity := &store.Identity{Username: "jdoe", Email: "jdoe@example.org"}
	record := ldap.NewRecord("uid=jdoe,dc=example,dc=org", map[ldap.Attribute][]string{
		ldap.AttrUID:  {"jdoe"},
		ldap.AttrSN:   {"jdoe"},
		ldap.AttrMail: {"jdoe@example.org"},
	})

	assert.Empty(t, DefaultMapping().Changed(identity, record))
}

func TestChangedMissingRemoteAttribute(t *testing.T) {
	identity := &store.Identity{Username: "jdoe", Email: "jdoe@example.org"}
	record := ldap.NewRecord("uid=jdoe,dc=example,dc=org", map[ldap.Attribute][]string{
		ldap.AttrUID: {"jdoe"},
		ldap.AttrSN:  {"jdoe"},
	})

	changed := DefaultMapping().Changed(identity, record)
	assert.Equal(t, []string{"jdoe@example.org"}, changed[ldap.AttrMail])
}
