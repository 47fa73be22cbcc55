// README: Ledger gates order evaluation: cooldown, abandonment and response timeouts.
package antispam

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Ledger is not safe for concurrent use on its own; the caller serialises
// Admit and Record so that sweep, check and record act as one unit.
type Ledger struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

func NewLedger(store Store, cfg Config, logger *slog.Logger) *Ledger {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = def.ResponseTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, cfg: cfg, logger: logger}
}

func (l *Ledger) Config() Config {
	return l.cfg
}

// Admit decides whether fp may be evaluated at now. Pending entries past the
// response timeout are abandoned first.
func (l *Ledger) Admit(ctx context.Context, fp string, now time.Time) (Verdict, error) {
	if err := l.sweep(ctx, now); err != nil {
		return "", err
	}
	abandoned, err := l.store.IsAbandoned(ctx, fp)
	if err != nil {
		return "", fmt.Errorf("check abandoned: %w", err)
	}
	if abandoned {
		return VerdictAbandoned, nil
	}
	last, ok, err := l.store.LastPushed(ctx, fp)
	if err != nil {
		return "", fmt.Errorf("check cooldown: %w", err)
	}
	if ok && now.Sub(last) < l.cfg.Cooldown {
		return VerdictCooldown, nil
	}
	return VerdictFresh, nil
}

func (l *Ledger) sweep(ctx context.Context, now time.Time) error {
	pending, err := l.store.Pending(ctx)
	if err != nil {
		return fmt.Errorf("load pending: %w", err)
	}
	expired := make([]string, 0)
	for fp, at := range pending {
		if now.Sub(at) > l.cfg.ResponseTimeout {
			expired = append(expired, fp)
		}
	}
	sort.Strings(expired)
	for _, fp := range expired {
		if err := l.store.Abandon(ctx, fp); err != nil {
			return fmt.Errorf("abandon %s: %w", fp, err)
		}
		l.logger.Info("pushed order timed out, abandoned", "fingerprint", fp)
	}
	return nil
}

// Record marks fp as pushed at now and awaiting a response.
func (l *Ledger) Record(ctx context.Context, fp string, now time.Time) error {
	if err := l.store.Record(ctx, fp, now, l.cfg.Cooldown); err != nil {
		return fmt.Errorf("record %s: %w", fp, err)
	}
	return nil
}

// Resolve applies the driver's answer. A decline abandons fp for good; an
// accept only ends the wait.
func (l *Ledger) Resolve(ctx context.Context, fp string, accepted bool) error {
	if accepted {
		return l.store.ClearPending(ctx, fp)
	}
	return l.store.Abandon(ctx, fp)
}
