package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/ldap"
	"github.com/ldapgate/ldapgate/internal/store"
)

// AuthenticationHooks is the surface the host integration layer invokes
// around its login and password-recovery flows.
type AuthenticationHooks interface {
	// PreLogin verifies the credentials against the directory pool and
	// returns the reconciled local identity. ErrAbstain defers to the
	// host's own credential flow; ErrInvalidCredentials reports a
	// rejected login.
	PreLogin(ctx context.Context, username, password string) (*store.Identity, error)

	// PostLogin runs after a successful directory login, backfilling the
	// user into the sync target when one is configured.
	PostLogin(ctx context.Context, identity *store.Identity, password string) error

	// PreRecoveryRequest decides whether a password-recovery request for
	// the given email may proceed locally.
	PreRecoveryRequest(ctx context.Context, email string) (*RecoveryDecision, error)
}

// RecoveryDecision is the outcome of a password-recovery pre-check.
// When Proceed is false the host redirects the user to RedirectURL
// instead of running its local recovery flow.
type RecoveryDecision struct {
	Proceed     bool
	RedirectURL string
}

// SessionStarter begins a host session for a resolved identity.
type SessionStarter interface {
	StartSession(ctx context.Context, identity *store.Identity) error
}

// PostLoginSyncer backfills a logged-in identity into the sync target.
type PostLoginSyncer interface {
	PostLogin(ctx context.Context, identity *store.Identity, password string) error
}

// HooksConfig controls the password-recovery pre-check.
type HooksConfig struct {
	// AllowPasswordRecovery lets directory users run the host's local
	// recovery flow. When false, recovery requests for directory users
	// are redirected to RecoveryRedirectURL.
	AllowPasswordRecovery bool
	RecoveryRedirectURL   string
}

// Hooks is the production AuthenticationHooks implementation.
type Hooks struct {
	verifier   *Verifier
	reconciler *Reconciler
	lookup     *Lookup
	primary    ldap.Directory
	sessions   SessionStarter  // optional
	syncer     PostLoginSyncer // optional
	cfg        HooksConfig
	log        *zap.Logger
}

// NewHooks returns Hooks. sessions and syncer may be nil.
func NewHooks(verifier *Verifier, reconciler *Reconciler, lookup *Lookup, primary ldap.Directory, sessions SessionStarter, syncer PostLoginSyncer, cfg HooksConfig, log *zap.Logger) *Hooks {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hooks{
		verifier:   verifier,
		reconciler: reconciler,
		lookup:     lookup,
		primary:    primary,
		sessions:   sessions,
		syncer:     syncer,
		cfg:        cfg,
		log:        log,
	}
}

func (h *Hooks) PreLogin(ctx context.Context, username, password string) (*store.Identity, error) {
	ok, err := h.verifier.Verify(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	identity, err := h.reconciler.Resolve(ctx, username)
	if err != nil {
		return nil, err
	}

	if h.sessions != nil {
		if err := h.sessions.StartSession(ctx, identity); err != nil {
			return nil, err
		}
	}

	h.log.Info("directory login succeeded",
		zap.String("username", username))
	return identity, nil
}

func (h *Hooks) PostLogin(ctx context.Context, identity *store.Identity, password string) error {
	if h.syncer == nil {
		return nil
	}
	if err := h.syncer.PostLogin(ctx, identity, password); err != nil {
		h.log.Warn("post-login directory backfill failed",
			zap.String("username", identity.Username),
			zap.Error(err))
	}
	return nil
}

func (h *Hooks) PreRecoveryRequest(ctx context.Context, email string) (*RecoveryDecision, error) {
	// The mail lookup always runs, so an ambiguous directory surfaces
	// even when recovery is allowed.
	_, err := h.lookup.Find(ctx, h.primary, email, ldap.AttrMail)
	if err != nil {
		if errors.Is(err, ldap.ErrNotFound) || errors.Is(err, ldap.ErrUnexpectedEntryType) {
			return &RecoveryDecision{Proceed: true}, nil
		}
		return nil, err
	}

	if h.cfg.AllowPasswordRecovery {
		return &RecoveryDecision{Proceed: true}, nil
	}
	return &RecoveryDecision{Proceed: false, RedirectURL: h.cfg.RecoveryRedirectURL}, nil
}
