package dirsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/auth"
	"github.com/ldapgate/ldapgate/internal/ldap"
	"github.com/ldapgate/ldapgate/internal/store"
)

// LifecycleHooks is the surface the host integration layer invokes
// around local identity lifecycle events.
type LifecycleHooks interface {
	// PostCreate mirrors a newly created identity to the sync target.
	PostCreate(ctx context.Context, identity *store.Identity, password string) error

	// PreUpdate stages the remote changes for an identity update. The
	// remote entry is located by the username before the update; a
	// username change renames the entry. password carries the new
	// cleartext password when the update includes one, "" otherwise.
	PreUpdate(ctx context.Context, oldUsername string, identity *store.Identity, password string) error

	// PostPasswordReset pushes a completed password reset.
	PostPasswordReset(ctx context.Context, identity *store.Identity, password string) error

	// PreDelete removes the remote entry of an identity about to be
	// deleted. A missing remote entry is a no-op.
	PreDelete(ctx context.Context, username string) error
}

// Nop is a LifecycleHooks and post-login syncer that does nothing, used
// when synchronization is disabled.
type Nop struct{}

func (Nop) PostLogin(context.Context, *store.Identity, string) error          { return nil }
func (Nop) PostCreate(context.Context, *store.Identity, string) error        { return nil }
func (Nop) PreUpdate(context.Context, string, *store.Identity, string) error { return nil }
func (Nop) PostPasswordReset(context.Context, *store.Identity, string) error { return nil }
func (Nop) PreDelete(context.Context, string) error                          { return nil }

// Syncer mirrors identity lifecycle events to the sync target. It
// implements LifecycleHooks and the post-login backfill.
//
// Remote entries are located with the same attribute walk logins use
// (uid, cn, sAMAccountName), so entries provisioned under any of those
// naming attributes are found, not only the cn/uid pairs the Syncer
// writes itself.
type Syncer struct {
	target  ldap.Directory
	lookup  *auth.Lookup
	mapping AttributeMapping
	log     *zap.Logger
}

// NewSyncer returns a Syncer against the given target.
func NewSyncer(target ldap.Directory, lookup *auth.Lookup, mapping AttributeMapping, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	if mapping == nil {
		mapping = DefaultMapping()
	}
	return &Syncer{target: target, lookup: lookup, mapping: mapping, log: log}
}

// opLogger tags every log line of one sync operation with a correlation
// id.
func (s *Syncer) opLogger(op, username string) *zap.Logger {
	return s.log.With(
		zap.String("sync_id", uuid.NewString()),
		zap.String("operation", op),
		zap.String("username", username))
}

// PostLogin backfills the logged-in identity into the sync target. This
// is the only path that can provision pre-existing identities remotely,
// since only a live login carries their cleartext password.
func (s *Syncer) PostLogin(ctx context.Context, identity *store.Identity, password string) error {
	log := s.opLogger("post_login", identity.Username)

	_, err := s.lookup.FindByFallback(ctx, s.target, identity.Username)
	if err == nil {
		return nil
	}
	if !isMissing(err) {
		return err
	}
	return s.create(ctx, identity, password, log)
}

func (s *Syncer) PostCreate(ctx context.Context, identity *store.Identity, password string) error {
	log := s.opLogger("post_create", identity.Username)
	return s.create(ctx, identity, password, log)
}

func (s *Syncer) PreUpdate(ctx context.Context, oldUsername string, identity *store.Identity, password string) error {
	log := s.opLogger("pre_update", identity.Username)

	record, err := s.lookup.FindByFallback(ctx, s.target, oldUsername)
	if err != nil {
		if !isMissing(err) {
			return err
		}
		if password == "" {
			log.Warn("remote entry missing and no password available to recreate it",
				zap.String("old_username", oldUsername))
			return nil
		}
		return s.create(ctx, identity, password, log)
	}

	changed := s.mapping.Changed(identity, record)
	if password != "" {
		changed[ldap.AttrUserPassword] = []string{PasswordDigest(password)}
	}
	if len(changed) > 0 {
		err := s.target.Modify(ctx, &ldap.ModifyRequest{
			DN:                record.DN,
			ReplaceAttributes: changed,
		})
		if err != nil {
			return fmt.Errorf("updating remote entry %s: %w", record.DN, err)
		}
		log.Debug("remote entry updated", zap.String("dn", record.DN))
	}

	if identity.Username != oldUsername {
		rdnAttr, _, err := ldap.FirstRDN(record.DN)
		if err != nil {
			return err
		}
		newRDN := fmt.Sprintf("%s=%s", rdnAttr, ldap.EscapeDNValue(identity.Username))
		err = s.target.Rename(ctx, &ldap.RenameRequest{
			DN:           record.DN,
			NewRDN:       newRDN,
			DeleteOldRDN: true,
		})
		if err != nil {
			return fmt.Errorf("renaming remote entry %s: %w", record.DN, err)
		}
		log.Info("remote entry renamed",
			zap.String("old_username", oldUsername),
			zap.String("new_rdn", newRDN))
	}

	return nil
}

func (s *Syncer) PostPasswordReset(ctx context.Context, identity *store.Identity, password string) error {
	log := s.opLogger("post_password_reset", identity.Username)

	record, err := s.lookup.FindByFallback(ctx, s.target, identity.Username)
	if err != nil {
		if !isMissing(err) {
			return err
		}
		return s.create(ctx, identity, password, log)
	}

	err = s.target.Modify(ctx, &ldap.ModifyRequest{
		DN: record.DN,
		ReplaceAttributes: map[ldap.Attribute][]string{
			ldap.AttrUserPassword: {PasswordDigest(password)},
		},
	})
	if err != nil {
		return fmt.Errorf("updating remote password for %s: %w", record.DN, err)
	}
	log.Debug("remote password updated", zap.String("dn", record.DN))
	return nil
}

func (s *Syncer) PreDelete(ctx context.Context, username string) error {
	log := s.opLogger("pre_delete", username)

	record, err := s.lookup.FindByFallback(ctx, s.target, username)
	if err != nil {
		if isMissing(err) {
			return nil
		}
		return err
	}

	if err := s.target.Delete(ctx, record.DN); err != nil {
		return fmt.Errorf("deleting remote entry %s: %w", record.DN, err)
	}
	log.Info("remote entry deleted", zap.String("dn", record.DN))
	return nil
}

// create adds the remote entry for an identity. An entry that already
// exists is logged and swallowed on every create-if-absent path.
func (s *Syncer) create(ctx context.Context, identity *store.Identity, password string, log *zap.Logger) error {
	cfg := s.target.Config()
	dn := cfg.Dialect.UserDN(identity.Username, cfg)

	attrs := s.mapping.Apply(identity)
	attrs[ldap.AttrCN] = []string{identity.Username}
	attrs[ldap.AttrObjectClass] = cfg.Dialect.UserObjectClasses()
	if password != "" {
		attrs[ldap.AttrUserPassword] = []string{PasswordDigest(password)}
	}

	err := s.target.Add(ctx, &ldap.AddRequest{DN: dn, Attributes: attrs})
	if err != nil {
		if ldap.IsAlreadyExists(err) {
			log.Warn("remote entry already exists", zap.String("dn", dn))
			return nil
		}
		return fmt.Errorf("creating remote entry %s: %w", dn, err)
	}

	log.Info("remote entry created", zap.String("dn", dn))
	return nil
}

// isMissing reports the search outcomes treated as "no remote entry".
func isMissing(err error) bool {
	return errors.Is(err, ldap.ErrNotFound) || errors.Is(err, ldap.ErrUnexpectedEntryType)
}
