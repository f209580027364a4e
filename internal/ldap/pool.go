package ldap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Pool owns the directory sessions of a deployment: the primary
// endpoint, one derived session per alternate organizational unit, and
// the secondary endpoint used as the sync target. Sessions are
// established once at startup.
type Pool struct {
	primary    *Conn
	alternates []*Conn
	secondary  *Conn
	log        *zap.Logger
}

// NewPool dials the primary endpoint, one session per alternate
// organizational unit (in declared order), and the secondary endpoint.
// A nil secondary configuration falls back to the primary session. Any
// dial failure tears down the sessions established so far.
func NewPool(ctx context.Context, primary *EndpointConfig, alternateOUs []string, secondary *EndpointConfig, log *zap.Logger) (*Pool, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pool := &Pool{log: log}

	var err error
	pool.primary, err = Dial(ctx, primary, log)
	if err != nil {
		return nil, fmt.Errorf("dialing primary endpoint: %w", err)
	}

	for _, ou := range alternateOUs {
		derived := primary.Dialect.ForOrganizationalUnit(primary, ou)
		conn, err := Dial(ctx, derived, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("dialing alternate organizational unit %q: %w", ou, err)
		}
		pool.alternates = append(pool.alternates, conn)
	}

	if secondary != nil {
		pool.secondary, err = Dial(ctx, secondary, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("dialing secondary endpoint: %w", err)
		}
	}

	return pool, nil
}

// Primary returns the primary endpoint session.
func (p *Pool) Primary() Directory {
	return p.primary
}

// Secondary returns the sync target session, the primary when no
// secondary endpoint is configured.
func (p *Pool) Secondary() Directory {
	if p.secondary != nil {
		return p.secondary
	}
	return p.primary
}

// AttemptOrder returns the sessions credential verification walks:
// primary first, then each alternate organizational unit in declared
// order.
func (p *Pool) AttemptOrder() []Directory {
	order := make([]Directory, 0, 1+len(p.alternates))
	order = append(order, p.primary)
	for _, conn := range p.alternates {
		order = append(order, conn)
	}
	return order
}

// Ping verifies connectivity on every session in the pool.
func (p *Pool) Ping(ctx context.Context) error {
	var errs []error
	for _, conn := range p.AttemptOrder() {
		if err := conn.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("endpoint %s: %w", conn.Config().Address(), err))
		}
	}
	if p.secondary != nil {
		if err := p.secondary.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("secondary endpoint %s: %w", p.secondary.Config().Address(), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases all sessions.
func (p *Pool) Close() error {
	var errs []error
	if p.primary != nil {
		errs = append(errs, p.primary.Close())
	}
	for _, conn := range p.alternates {
		errs = append(errs, conn.Close())
	}
	if p.secondary != nil {
		errs = append(errs, p.secondary.Close())
	}
	return errors.Join(errs...)
}
