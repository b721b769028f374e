package reconciler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds how hard the engine tries before marking an entity failed.
type Policy struct {
	// UnavailableRetries is how many times a call is retried while the
	// daemon is unreachable.
	UnavailableRetries int

	// MaxAttempts is how many times a call failing with an unclassified
	// error is attempted.
	MaxAttempts int

	// NameConflictRetries is how many disambiguated names (name-2, name-3,
	// ...) are tried after the desired name is taken.
	NameConflictRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		UnavailableRetries:  5,
		MaxAttempts:         3,
		NameConflictRetries: 5,
		InitialBackoff:      200 * time.Millisecond,
		MaxBackoff:          10 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.UnavailableRetries <= 0 {
		p.UnavailableRetries = d.UnavailableRetries
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.NameConflictRetries < 0 {
		p.NameConflictRetries = 0
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// newBackOff returns an exponential backoff with jitter for one call.
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
