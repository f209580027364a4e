package ldap

import (
	"strings"

	ldaplib "github.com/go-ldap/ldap/v3"
)

// Attribute names a well-known directory attribute. Records carry a typed
// map over this closed set instead of a free-form attribute bag; values
// for names outside the set are dropped on conversion and lookups for
// them report an explicit miss.
type Attribute string

const (
	AttrUID            Attribute = "uid"
	AttrCN             Attribute = "cn"
	AttrSN             Attribute = "sn"
	AttrSAMAccountName Attribute = "sAMAccountName"
	AttrMail           Attribute = "mail"
	AttrDisplayName    Attribute = "displayName"
	AttrUserPassword   Attribute = "userPassword"
	AttrObjectClass    Attribute = "objectClass"
	AttrObjectSid      Attribute = "objectSid"
)

// knownAttributes maps lowercased wire names to their canonical constant.
var knownAttributes = map[string]Attribute{
	"uid":            AttrUID,
	"cn":             AttrCN,
	"sn":             AttrSN,
	"samaccountname": AttrSAMAccountName,
	"mail":           AttrMail,
	"displayname":    AttrDisplayName,
	"userpassword":   AttrUserPassword,
	"objectclass":    AttrObjectClass,
	"objectsid":      AttrObjectSid,
}

// NormalizeAttribute resolves a wire attribute name (case-insensitive) to
// its canonical constant. The second return is false for names outside
// the known set.
func NormalizeAttribute(name string) (Attribute, bool) {
	attr, ok := knownAttributes[strings.ToLower(strings.TrimSpace(name))]
	return attr, ok
}

// FallbackAttributes is the candidate sequence tried when locating a user
// by an identifying string: uid first, then cn, then sAMAccountName.
func FallbackAttributes() []Attribute {
	return []Attribute{AttrUID, AttrCN, AttrSAMAccountName}
}

// Record is a remote user entry: a distinguished name plus the known
// attributes the search returned. Records are fetched per operation and
// never cached.
type Record struct {
	DN    string
	SID   string // decoded objectSid, Active Directory dialect only
	attrs map[Attribute][]string
}

// NewRecord builds a record from explicit attribute values. Intended for
// tests and for staging entries before creation.
func NewRecord(dn string, attrs map[Attribute][]string) *Record {
	copied := make(map[Attribute][]string, len(attrs))
	for k, v := range attrs {
		copied[k] = append([]string(nil), v...)
	}
	return &Record{DN: dn, attrs: copied}
}

// recordFromEntry converts a go-ldap entry, keeping only known attributes.
func recordFromEntry(entry *ldaplib.Entry, dialect Dialect) *Record {
	rec := &Record{
		DN:    entry.DN,
		attrs: make(map[Attribute][]string, len(entry.Attributes)),
	}
	for _, attr := range entry.Attributes {
		canonical, ok := NormalizeAttribute(attr.Name)
		if !ok {
			continue
		}
		rec.attrs[canonical] = append([]string(nil), attr.Values...)
	}
	if dialect == DialectActiveDirectory {
		rec.SID = extractSID(entry)
	}
	return rec
}

// First returns the first value of the attribute. The second return is
// false when the attribute is absent or empty.
func (r *Record) First(attr Attribute) (string, bool) {
	values := r.attrs[attr]
	if len(values) == 0 || values[0] == "" {
		return "", false
	}
	return values[0], true
}

// Values returns all values of the attribute in directory order.
func (r *Record) Values(attr Attribute) []string {
	return append([]string(nil), r.attrs[attr]...)
}

// Has reports whether the attribute is present with at least one value.
func (r *Record) Has(attr Attribute) bool {
	return len(r.attrs[attr]) > 0
}

// HasObjectClass reports whether the record carries the given object
// class (case-insensitive).
func (r *Record) HasObjectClass(class string) bool {
	for _, v := range r.attrs[AttrObjectClass] {
		if strings.EqualFold(v, class) {
			return true
		}
	}
	return false
}
