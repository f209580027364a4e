package ldap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	ldaplib "github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Conn is a bound service session to one directory endpoint. It
// implements Directory. One Conn is created per endpoint at startup and
// lives for the process lifetime; user credential checks run on
// short-lived side connections and never rebind the service session.
type Conn struct {
	cfg *EndpointConfig
	log *zap.Logger

	mu   sync.Mutex // serializes use of the underlying connection
	conn *ldaplib.Conn

	// prefixMu serializes account-prefix discovery sessions derived from
	// this connection; the derived session's Close releases it.
	prefixMu sync.Mutex
	release  func()

	closeOnce sync.Once
}

// Dial connects to the endpoint and performs the service bind.
func Dial(ctx context.Context, cfg *EndpointConfig, log *zap.Logger) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &DirectoryError{
			Operation: "dial",
			Category:  ErrorCategoryValidation,
			Message:   err.Error(),
			Cause:     err,
		}
	}
	if log == nil {
		log = zap.NewNop()
	}

	raw, err := dialEndpoint(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := serviceBind(raw, cfg); err != nil {
		raw.Close()
		return nil, NewDirectoryError("bind", err)
	}

	log.Debug("directory session established",
		zap.String("endpoint", cfg.Address()),
		zap.String("dialect", string(cfg.Dialect)),
		zap.String("auth_method", cfg.AuthMethod().String()))

	return &Conn{cfg: cfg, log: log, conn: raw}, nil
}

// dialEndpoint opens a raw connection honoring the TLS settings.
func dialEndpoint(ctx context.Context, cfg *EndpointConfig) (*ldaplib.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []ldaplib.DialOpt{
		ldaplib.DialWithDialer(&net.Dialer{Timeout: cfg.Timeout}),
	}

	var tlsCfg *tls.Config
	if cfg.UseTLS || cfg.StartTLS {
		var err error
		tlsCfg, err = tlsConfig(cfg)
		if err != nil {
			return nil, NewDirectoryError("dial", err)
		}
	}
	if cfg.UseTLS {
		opts = append(opts, ldaplib.DialWithTLSConfig(tlsCfg))
	}

	raw, err := ldaplib.DialURL(cfg.URL(), opts...)
	if err != nil {
		return nil, NewDirectoryError("dial", err)
	}
	raw.SetTimeout(cfg.Timeout)

	if cfg.StartTLS && !cfg.UseTLS {
		if err := raw.StartTLS(tlsCfg); err != nil {
			raw.Close()
			return nil, NewDirectoryError("starttls", err)
		}
	}

	return raw, nil
}

// tlsConfig builds the TLS configuration for the endpoint.
func tlsConfig(cfg *EndpointConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %s", cfg.CACertFile)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

// serviceBind authenticates the service session.
func serviceBind(raw *ldaplib.Conn, cfg *EndpointConfig) error {
	switch cfg.AuthMethod() {
	case AuthMethodKerberos:
		return kerberosBind(raw, cfg)
	case AuthMethodSimpleBind:
		return raw.Bind(cfg.BindDN, cfg.BindPassword)
	default:
		return raw.UnauthenticatedBind("")
	}
}

// Config returns the endpoint configuration of the session.
func (c *Conn) Config() *EndpointConfig {
	return c.cfg
}

// BindAs attempts to authenticate the given identifier and password on a
// fresh short-lived connection, leaving the service session untouched.
// Credential binds are never retried.
func (c *Conn) BindAs(ctx context.Context, identifier, password string) error {
	if identifier == "" || password == "" {
		return &DirectoryError{
			Operation: "user_bind",
			Category:  ErrorCategoryAuthentication,
			Message:   "empty identifier or password",
		}
	}

	side, err := dialEndpoint(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer side.Close()

	if err := side.Bind(identifier, password); err != nil {
		return NewDirectoryError("user_bind", err)
	}
	return nil
}

// Search runs a subtree search and returns the matching records. Record
// conversion keeps only known attributes; entry-type filtering is left
// to the caller.
func (c *Conn) Search(ctx context.Context, req *SearchRequest) ([]*Record, error) {
	if req == nil {
		return nil, &DirectoryError{
			Operation: "search",
			Category:  ErrorCategoryValidation,
			Message:   "search request cannot be nil",
		}
	}

	base := req.BaseDN
	if base == "" {
		base = c.cfg.BaseDN
	}

	ldapReq := ldaplib.NewSearchRequest(
		base,
		ldaplib.ScopeWholeSubtree,
		ldaplib.NeverDerefAliases,
		req.SizeLimit,
		int(c.cfg.Timeout.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		nil,
	)

	var result *ldaplib.SearchResult
	err := c.withRetry(ctx, "search", func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		var searchErr error
		result, searchErr = c.conn.Search(ldapReq)
		return searchErr
	})
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(result.Entries))
	for _, entry := range result.Entries {
		records = append(records, recordFromEntry(entry, c.cfg.Dialect))
	}
	return records, nil
}

// Add creates a new entry.
func (c *Conn) Add(ctx context.Context, req *AddRequest) error {
	if req == nil || req.DN == "" {
		return &DirectoryError{
			Operation: "add",
			Category:  ErrorCategoryValidation,
			Message:   "add request requires a DN",
		}
	}

	ldapReq := ldaplib.NewAddRequest(req.DN, nil)
	for attr, values := range req.Attributes {
		ldapReq.Attribute(string(attr), values)
	}

	return c.withRetry(ctx, "add", func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.conn.Add(ldapReq)
	})
}

// Modify replaces attributes on an existing entry.
func (c *Conn) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil || req.DN == "" {
		return &DirectoryError{
			Operation: "modify",
			Category:  ErrorCategoryValidation,
			Message:   "modify request requires a DN",
		}
	}
	if len(req.ReplaceAttributes) == 0 {
		return nil
	}

	ldapReq := ldaplib.NewModifyRequest(req.DN, nil)
	for attr, values := range req.ReplaceAttributes {
		ldapReq.Replace(string(attr), values)
	}

	return c.withRetry(ctx, "modify", func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.conn.Modify(ldapReq)
	})
}

// Rename changes an entry's relative distinguished name in place.
func (c *Conn) Rename(ctx context.Context, req *RenameRequest) error {
	if req == nil || req.DN == "" || req.NewRDN == "" {
		return &DirectoryError{
			Operation: "rename",
			Category:  ErrorCategoryValidation,
			Message:   "rename request requires a DN and a new RDN",
		}
	}

	ldapReq := ldaplib.NewModifyDNRequest(req.DN, req.NewRDN, req.DeleteOldRDN, "")

	return c.withRetry(ctx, "rename", func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.conn.ModifyDN(ldapReq)
	})
}

// Delete removes an entry.
func (c *Conn) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return &DirectoryError{
			Operation: "delete",
			Category:  ErrorCategoryValidation,
			Message:   "DN cannot be empty",
		}
	}

	ldapReq := ldaplib.NewDelRequest(dn, nil)

	return c.withRetry(ctx, "delete", func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.conn.Del(ldapReq)
	})
}

// WithAccountPrefix returns a new bound session whose configuration
// carries the given account prefix. The receiver's configuration is
// never touched; at most one derived session exists per connection at a
// time, and closing it releases the slot.
func (c *Conn) WithAccountPrefix(ctx context.Context, prefix string) (Directory, error) {
	c.prefixMu.Lock()

	derived, err := Dial(ctx, c.cfg.WithAccountPrefix(prefix), c.log)
	if err != nil {
		c.prefixMu.Unlock()
		return nil, err
	}
	derived.release = c.prefixMu.Unlock

	c.log.Debug("account prefix discovery session opened",
		zap.String("endpoint", c.cfg.Address()),
		zap.String("prefix", prefix))

	return derived, nil
}

// Ping verifies connectivity with a root DSE read.
func (c *Conn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	searchReq := ldaplib.NewSearchRequest(
		"",
		ldaplib.ScopeBaseObject,
		ldaplib.NeverDerefAliases,
		1, 5, false,
		"(objectClass=*)",
		[]string{"supportedLDAPVersion"},
		nil,
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Search(searchReq); err != nil {
		return NewDirectoryError("ping", err)
	}
	return nil
}

// Close releases the session.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		err = c.conn.Close()
		c.mu.Unlock()
		if c.release != nil {
			c.release()
		}
	})
	return err
}

// withRetry executes an operation with exponential backoff on retryable
// errors.
func (c *Conn) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	backoff := c.cfg.InitialBackoff

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				c.log.Debug("operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempts", attempt+1))
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return NewDirectoryError(operation, err)
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		c.log.Debug("retrying directory operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * c.cfg.BackoffFactor)
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}
	}

	return NewDirectoryError(operation, lastErr)
}
