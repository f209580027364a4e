package dirsync

import (
	"crypto/sha1"
	"encoding/base64"
)

// PasswordDigest returns the RFC 2307 userPassword value for a cleartext
// password: the literal {SHA} scheme prefix followed by the base64 of
// the SHA-1 digest.
func PasswordDigest(password string) string {
	sum := sha1.Sum([]byte(password))
	return "{SHA}" + base64.StdEncoding.EncodeToString(sum[:])
}
