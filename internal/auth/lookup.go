// Package auth implements credential verification against the directory
// pool and reconciliation of verified users with the local identity
// store.
package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/ldap"
)

// lookupAttributes are requested on every user search.
var lookupAttributes = []string{
	string(ldap.AttrUID),
	string(ldap.AttrCN),
	string(ldap.AttrSN),
	string(ldap.AttrSAMAccountName),
	string(ldap.AttrMail),
	string(ldap.AttrDisplayName),
	string(ldap.AttrObjectClass),
	string(ldap.AttrObjectSid),
}

// Lookup finds remote user records. It is read-only and never writes to
// the directory or the local store.
type Lookup struct {
	log *zap.Logger
}

// NewLookup returns a Lookup.
func NewLookup(log *zap.Logger) *Lookup {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lookup{log: log}
}

// Find searches the directory for the single user whose attr equals
// value. An endpoint-level identifying-attribute override replaces the
// equality key. Outcomes: exactly one user entry, ldap.ErrNotFound,
// ldap.ErrMultipleMatches, or ldap.ErrUnexpectedEntryType; an ambiguous
// match is never resolved by picking an entry.
func (l *Lookup) Find(ctx context.Context, dir ldap.Directory, value string, attr ldap.Attribute) (*ldap.Record, error) {
	if value == "" {
		return nil, ldap.ErrNotFound
	}

	key := attr
	if override := dir.Config().IdentifyingAttribute; override != "" {
		normalized, ok := ldap.NormalizeAttribute(override)
		if !ok {
			return nil, fmt.Errorf("unknown identifying attribute %q", override)
		}
		key = normalized
	}

	records, err := dir.Search(ctx, &ldap.SearchRequest{
		Filter:     fmt.Sprintf("(%s=%s)", key, ldap.EscapeFilterValue(value)),
		Attributes: lookupAttributes,
		SizeLimit:  2,
	})
	if err != nil {
		// The server answers sizeLimitExceeded when more entries match
		// than the limit allows, which is the same ambiguous outcome as
		// two matches within it.
		if ldap.IsSizeLimitExceeded(err) {
			return nil, fmt.Errorf("%w: %s=%s", ldap.ErrMultipleMatches, key, value)
		}
		return nil, err
	}

	switch len(records) {
	case 0:
		return nil, ldap.ErrNotFound
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s=%s", ldap.ErrMultipleMatches, key, value)
	}

	record := records[0]
	if !dir.Config().Dialect.IsUserEntry(record) {
		return nil, fmt.Errorf("%w: %s", ldap.ErrUnexpectedEntryType, record.DN)
	}
	return record, nil
}

// FindByFallback tries the fallback attribute sequence (uid, cn,
// sAMAccountName) until a record is found. Misses and non-user entries
// advance to the next candidate; ambiguous matches and operational
// errors stop the walk.
func (l *Lookup) FindByFallback(ctx context.Context, dir ldap.Directory, value string) (*ldap.Record, error) {
	lastErr := error(ldap.ErrNotFound)
	for _, attr := range ldap.FallbackAttributes() {
		record, err := l.Find(ctx, dir, value, attr)
		if err == nil {
			return record, nil
		}
		if errors.Is(err, ldap.ErrNotFound) || errors.Is(err, ldap.ErrUnexpectedEntryType) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}
