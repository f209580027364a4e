package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/ldap"
)

var (
	// ErrAbstain reports that verification did not run because the
	// username or password was empty. The caller's own credential flow
	// decides what to do; an abstention is not a failed login.
	ErrAbstain = errors.New("directory verification abstained")

	// ErrInvalidCredentials reports that no endpoint accepted the
	// credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Verifier checks user credentials against the directory endpoints in
// attempt order: the primary endpoint first, then each alternate
// organizational unit as declared, short-circuiting on the first
// success.
type Verifier struct {
	dirs   []ldap.Directory
	lookup *Lookup
	log    *zap.Logger
}

// NewVerifier returns a Verifier over the given endpoints.
func NewVerifier(dirs []ldap.Directory, lookup *Lookup, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{dirs: dirs, lookup: lookup, log: log}
}

// Verify reports whether the credentials authenticate against any
// endpoint. Ordinary credential rejection is (false, nil); empty
// username or password is ErrAbstain; transport and configuration
// failures propagate.
func (v *Verifier) Verify(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, ErrAbstain
	}

	for _, dir := range v.dirs {
		ok, err := v.tryEndpoint(ctx, dir, username, password)
		if err != nil {
			return false, err
		}
		if ok {
			v.log.Debug("credentials accepted",
				zap.String("username", username),
				zap.String("endpoint", dir.Config().Address()))
			return true, nil
		}
	}
	return false, nil
}

// tryEndpoint runs the verification state machine against one endpoint:
// direct bind with the configured account template, then an attribute
// fallback search, then a rebind through a session carrying the account
// prefix rediscovered from the matched record's RDN.
func (v *Verifier) tryEndpoint(ctx context.Context, dir ldap.Directory, username, password string) (bool, error) {
	cfg := dir.Config()

	err := dir.BindAs(ctx, cfg.BindIdentifier(username), password)
	if err == nil {
		return true, nil
	}
	if ldap.IsConnectionError(err) {
		return false, err
	}

	record, err := v.lookup.FindByFallback(ctx, dir, username)
	if err != nil {
		if errors.Is(err, ldap.ErrNotFound) || errors.Is(err, ldap.ErrUnexpectedEntryType) {
			return false, nil
		}
		return false, err
	}

	rdnAttr, err := ldap.RDNAttributeForSuffix(record.DN, cfg.AccountSuffix)
	if err != nil {
		v.log.Debug("account prefix rediscovery not applicable",
			zap.String("dn", record.DN),
			zap.Error(err))
		return false, nil
	}

	identifier, ok := record.First(rdnAttr)
	if !ok {
		return false, fmt.Errorf("matched entry %s is missing its naming attribute %s", record.DN, rdnAttr)
	}

	discovery, err := dir.WithAccountPrefix(ctx, string(rdnAttr)+"=")
	if err != nil {
		return false, err
	}
	defer discovery.Close()

	err = discovery.BindAs(ctx, discovery.Config().BindIdentifier(identifier), password)
	if err == nil {
		return true, nil
	}
	if ldap.IsConnectionError(err) {
		return false, err
	}
	return false, nil
}
