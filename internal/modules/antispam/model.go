// README: Anti-spam ledger types: verdicts, timing config and the storage contract.
package antispam

import (
	"context"
	"time"
)

type Verdict string

const (
	VerdictFresh     Verdict = "fresh"
	VerdictCooldown  Verdict = "cooldown"
	VerdictAbandoned Verdict = "abandoned"
)

const (
	DefaultCooldown        = 30 * time.Minute
	DefaultResponseTimeout = 300 * time.Second
)

type Config struct {
	// Cooldown suppresses a fingerprint after it was pushed.
	Cooldown time.Duration
	// ResponseTimeout abandons a pushed order nobody answered.
	ResponseTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Cooldown: DefaultCooldown, ResponseTimeout: DefaultResponseTimeout}
}

// Store keeps the ledger for one driver. Abandon must also drop the
// fingerprint from the pending set.
type Store interface {
	LastPushed(ctx context.Context, fp string) (time.Time, bool, error)
	IsAbandoned(ctx context.Context, fp string) (bool, error)
	Pending(ctx context.Context) (map[string]time.Time, error)
	Record(ctx context.Context, fp string, at time.Time, cooldown time.Duration) error
	ClearPending(ctx context.Context, fp string) error
	Abandon(ctx context.Context, fp string) error
}
