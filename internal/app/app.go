// Package app wires configuration, the directory pool, the local store
// and the authentication and sync components into a running instance.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/auth"
	"github.com/ldapgate/ldapgate/internal/config"
	"github.com/ldapgate/ldapgate/internal/dirsync"
	"github.com/ldapgate/ldapgate/internal/ldap"
	"github.com/ldapgate/ldapgate/internal/store"
)

// App is a wired ldapgate instance.
type App struct {
	Config     *config.Config
	Pool       *ldap.Pool
	DB         *store.DB
	Verifier   *auth.Verifier
	Reconciler *auth.Reconciler
	Hooks      *auth.Hooks
	Lifecycle  dirsync.LifecycleHooks
	Log        *zap.Logger
}

// Options carries the optional host collaborators.
type Options struct {
	// Sessions is invoked after reconciliation to begin a host session.
	Sessions auth.SessionStarter
}

// New dials the directory pool, opens the store and builds the
// components.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pool, err := ldap.NewPool(ctx, &cfg.Primary, cfg.AlternateOUs, cfg.Secondary, log)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		pool.Close()
		return nil, err
	}

	lookup := auth.NewLookup(log)
	verifier := auth.NewVerifier(pool.AttemptOrder(), lookup, log)
	reconciler := auth.NewReconciler(
		pool.Primary(),
		lookup,
		db.Identities(),
		db.Profiles(),
		db.Roles(),
		auth.ReconcilerConfig{
			CreateMissing:        cfg.CreateLocalUsers,
			DefaultRoles:         cfg.DefaultRoles,
			DefaultIdentityID:    cfg.DefaultIdentityID,
			DefaultIdentityEmail: cfg.DefaultIdentityEmail,
		},
		log,
	)

	var postLogin auth.PostLoginSyncer
	var lifecycle dirsync.LifecycleHooks = dirsync.Nop{}
	if cfg.SyncToSecondary {
		syncer := dirsync.NewSyncer(pool.Secondary(), lookup, dirsync.DefaultMapping(), log)
		postLogin = syncer
		lifecycle = syncer
	}

	hooks := auth.NewHooks(
		verifier,
		reconciler,
		lookup,
		pool.Primary(),
		opts.Sessions,
		postLogin,
		auth.HooksConfig{
			AllowPasswordRecovery: cfg.AllowPasswordRecovery,
			RecoveryRedirectURL:   cfg.RecoveryRedirectURL,
		},
		log,
	)

	return &App{
		Config:     cfg,
		Pool:       pool,
		DB:         db,
		Verifier:   verifier,
		Reconciler: reconciler,
		Hooks:      hooks,
		Lifecycle:  lifecycle,
		Log:        log,
	}, nil
}

// Check verifies connectivity on every configured endpoint.
func (a *App) Check(ctx context.Context) error {
	if err := a.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("directory connectivity check failed: %w", err)
	}
	return nil
}

// Close releases the directory sessions.
func (a *App) Close() error {
	var errs []error
	if a.Pool != nil {
		errs = append(errs, a.Pool.Close())
	}
	return errors.Join(errs...)
}
