package ldap

import (
	"fmt"

	"github.com/bwmarrin/go-objectsid"
	ldaplib "github.com/go-ldap/ldap/v3"
)

// DecodeSID converts a binary objectSid value to its S-1-5-21-... string
// form. Active Directory returns SIDs as binary data.
func DecodeSID(binarySID []byte) (string, error) {
	if len(binarySID) == 0 {
		return "", fmt.Errorf("binary SID cannot be empty")
	}
	sid := objectsid.Decode(binarySID)
	return sid.String(), nil
}

// extractSID pulls the objectSid out of an entry, returning "" when the
// attribute is absent or malformed. Already-decoded string values pass
// through; otherwise the binary form is decoded.
func extractSID(entry *ldaplib.Entry) string {
	if entry == nil {
		return ""
	}

	if s := entry.GetAttributeValue(string(AttrObjectSid)); len(s) >= 2 && s[:2] == "S-" {
		return s
	}

	if raw := entry.GetRawAttributeValue(string(AttrObjectSid)); len(raw) > 0 {
		sid, err := DecodeSID(raw)
		if err != nil {
			return ""
		}
		return sid
	}

	return ""
}
