// Package ldaptest provides an in-memory Directory implementation for
// tests.
package ldaptest

import (
	"context"
	"strings"
	"sync"

	ldaplib "github.com/go-ldap/ldap/v3"

	"github.com/ldapgate/ldapgate/internal/ldap"
)

// Fake is an in-memory ldap.Directory. Entries are ldap.Record values;
// bind attempts are checked against the Passwords map keyed by bind
// identifier. All mutations are recorded for assertions.
type Fake struct {
	mu sync.Mutex

	Cfg       *ldap.EndpointConfig
	Records   []*ldap.Record
	Passwords map[string]string

	// Injected failures. When set, the corresponding operation returns
	// the error instead of executing.
	BindErr   error
	SearchErr error
	AddErr    error
	ModifyErr error
	RenameErr error
	DeleteErr error
	PrefixErr error

	// Recorded operations.
	BindAttempts []string
	Adds         []*ldap.AddRequest
	Modifies     []*ldap.ModifyRequest
	Renames      []*ldap.RenameRequest
	Deletes      []string
	Prefixes     []string

	Closed bool

	// parent is set on sessions derived via WithAccountPrefix; derived
	// sessions share the parent's records, passwords and operation logs.
	parent *Fake
}

// New returns a Fake with the given endpoint configuration.
func New(cfg *ldap.EndpointConfig) *Fake {
	return &Fake{Cfg: cfg, Passwords: make(map[string]string)}
}

func (f *Fake) root() *Fake {
	if f.parent != nil {
		return f.parent
	}
	return f
}

func (f *Fake) Config() *ldap.EndpointConfig {
	return f.Cfg
}

func (f *Fake) BindAs(_ context.Context, identifier, password string) error {
	r := f.root()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.BindAttempts = append(r.BindAttempts, identifier)
	if r.BindErr != nil {
		return r.BindErr
	}
	if identifier == "" || password == "" {
		return &ldap.DirectoryError{
			Operation: "user_bind",
			Category:  ldap.ErrorCategoryAuthentication,
			Message:   "empty identifier or password",
		}
	}
	if stored, ok := r.Passwords[identifier]; ok && stored == password {
		return nil
	}
	return &ldap.DirectoryError{
		Operation: "user_bind",
		Category:  ldap.ErrorCategoryAuthentication,
		Code:      49, // invalidCredentials
		Message:   "Invalid Credentials",
	}
}

func (f *Fake) Search(_ context.Context, req *ldap.SearchRequest) ([]*ldap.Record, error) {
	r := f.root()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.SearchErr != nil {
		return nil, r.SearchErr
	}

	attr, value, ok := parseEqualityFilter(req.Filter)
	if !ok {
		return nil, nil
	}

	var matches []*ldap.Record
	for _, rec := range r.Records {
		for _, v := range rec.Values(attr) {
			if strings.EqualFold(v, value) {
				matches = append(matches, rec)
				break
			}
		}
	}
	// Servers cut the result set short and answer sizeLimitExceeded when
	// more entries match than the requested limit.
	if req.SizeLimit > 0 && len(matches) > req.SizeLimit {
		return nil, &ldap.DirectoryError{
			Operation: "search",
			Category:  ldap.ErrorCategoryUnknown,
			Code:      ldaplib.LDAPResultSizeLimitExceeded,
			Message:   "Size Limit Exceeded",
		}
	}
	return matches, nil
}

func (f *Fake) Add(_ context.Context, req *ldap.AddRequest) error {
	r := f.root()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Adds = append(r.Adds, req)
	if r.AddErr != nil {
		return r.AddErr
	}
	r.Records = append(r.Records, ldap.NewRecord(req.DN, req.Attributes))
	return nil
}

func (f *Fake) Modify(_ context.Context, req *ldap.ModifyRequest) error {
	r := f.root()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Modifies = append(r.Modifies, req)
	return r.ModifyErr
}

func (f *Fake) Rename(_ context.Context, req *ldap.RenameRequest) error {
	r := f.root()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Renames = append(r.Renames, req)
	return r.RenameErr
}

func (f *Fake) Delete(_ context.Context, dn string) error {
	r := f.root()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Deletes = append(r.Deletes, dn)
	return r.DeleteErr
}

func (f *Fake) WithAccountPrefix(_ context.Context, prefix string) (ldap.Directory, error) {
	r := f.root()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Prefixes = append(r.Prefixes, prefix)
	if r.PrefixErr != nil {
		return nil, r.PrefixErr
	}
	return &Fake{Cfg: f.Cfg.WithAccountPrefix(prefix), parent: r}, nil
}

func (f *Fake) Ping(context.Context) error {
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// parseEqualityFilter understands the simple "(attr=value)" filters the
// lookup layer builds.
func parseEqualityFilter(filter string) (ldap.Attribute, string, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(filter, "("), ")")
	name, value, found := strings.Cut(trimmed, "=")
	if !found {
		return "", "", false
	}
	attr, ok := ldap.NormalizeAttribute(name)
	if !ok {
		return "", "", false
	}
	return attr, value, true
}
