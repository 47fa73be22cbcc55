package antispam

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"redis": func() Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rdb.Close() })
			return NewRedisStore(rdb, "driver-1", 0)
		},
	}
}

func mustAdmit(t *testing.T, l *Ledger, fp string, now time.Time) Verdict {
	t.Helper()
	v, err := l.Admit(context.Background(), fp, now)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	return v
}

func TestLedger_Cooldown(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := NewLedger(newStore(), Config{ResponseTimeout: time.Hour}, nil)
			if v := mustAdmit(t, l, "fp", t0); v != VerdictFresh {
				t.Fatalf("expected fresh, got %s", v)
			}
			if err := l.Record(ctx, "fp", t0); err != nil {
				t.Fatalf("Record: %v", err)
			}
			if v := mustAdmit(t, l, "fp", t0.Add(10*time.Minute)); v != VerdictCooldown {
				t.Fatalf("expected cooldown, got %s", v)
			}
			if v := mustAdmit(t, l, "other", t0.Add(10*time.Minute)); v != VerdictFresh {
				t.Fatalf("expected other fingerprint fresh, got %s", v)
			}
			if err := l.Resolve(ctx, "fp", true); err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if v := mustAdmit(t, l, "fp", t0.Add(30*time.Minute)); v != VerdictFresh {
				t.Fatalf("expected fresh after cooldown, got %s", v)
			}
		})
	}
}

func TestLedger_CooldownLeavesLastPushedUnchanged(t *testing.T) {
	s := NewMemoryStore()
	l := NewLedger(s, DefaultConfig(), nil)
	if err := l.Record(context.Background(), "fp", t0); err != nil {
		t.Fatalf("Record: %v", err)
	}
	mustAdmit(t, l, "fp", t0.Add(time.Minute))
	last, ok, _ := s.LastPushed(context.Background(), "fp")
	if !ok || !last.Equal(t0) {
		t.Fatalf("lastPushed changed: %v %v", last, ok)
	}
}

func TestLedger_DeclineAbandonsForever(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			l := NewLedger(s, DefaultConfig(), nil)
			if err := l.Record(ctx, "fp", t0); err != nil {
				t.Fatalf("Record: %v", err)
			}
			if err := l.Resolve(ctx, "fp", false); err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			for _, d := range []time.Duration{time.Second, time.Hour, 72 * time.Hour} {
				if v := mustAdmit(t, l, "fp", t0.Add(d)); v != VerdictAbandoned {
					t.Fatalf("after %v: expected abandoned, got %s", d, v)
				}
			}
			pending, _ := s.Pending(ctx)
			if _, ok := pending["fp"]; ok {
				t.Error("abandoned fingerprint must leave pending")
			}
		})
	}
}

func TestLedger_ResponseTimeout(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := NewLedger(newStore(), Config{Cooldown: time.Minute, ResponseTimeout: 300 * time.Second}, nil)
			if err := l.Record(ctx, "fp", t0); err != nil {
				t.Fatalf("Record: %v", err)
			}
			// At exactly the deadline the entry is still pending.
			if v := mustAdmit(t, l, "fp", t0.Add(300*time.Second)); v != VerdictFresh {
				t.Fatalf("expected fresh at the deadline, got %s", v)
			}
			if v := mustAdmit(t, l, "fp", t0.Add(301*time.Second)); v != VerdictAbandoned {
				t.Fatalf("expected abandoned after the deadline, got %s", v)
			}
		})
	}
}

func TestLedger_SweepRunsOnAnyAdmission(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	l := NewLedger(s, DefaultConfig(), nil)
	if err := l.Record(ctx, "old", t0); err != nil {
		t.Fatalf("Record: %v", err)
	}
	mustAdmit(t, l, "unrelated", t0.Add(10*time.Minute))
	if ok, _ := s.IsAbandoned(ctx, "old"); !ok {
		t.Fatal("expected timed out fingerprint to be abandoned by an unrelated admission")
	}
}

func TestLedger_AcceptClearsPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	l := NewLedger(s, DefaultConfig(), nil)
	if err := l.Record(ctx, "fp", t0); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Resolve(ctx, "fp", true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// No timeout applies once the driver answered.
	if v := mustAdmit(t, l, "fp", t0.Add(time.Hour)); v != VerdictFresh {
		t.Fatalf("expected fresh, got %s", v)
	}
	if err := l.Resolve(ctx, "unknown", true); err != nil {
		t.Fatalf("resolving an unknown fingerprint: %v", err)
	}
}

func TestRedisStore_Keys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStore(rdb, "d7", 0)

	if err := s.Record(ctx, "abc", t0, 30*time.Minute); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if ttl := mr.TTL("dispatch:d7:pushed:abc"); ttl != 30*time.Minute {
		t.Errorf("expected cooldown TTL, got %v", ttl)
	}
	if got := mr.HGet("dispatch:d7:pending", "abc"); got == "" {
		t.Error("expected pending entry")
	}
	if err := s.Abandon(ctx, "abc"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if ok, _ := mr.SIsMember("dispatch:d7:abandoned", "abc"); !ok {
		t.Error("expected abandoned member")
	}
	if got := mr.HGet("dispatch:d7:pending", "abc"); got != "" {
		t.Errorf("expected pending entry removed, got %q", got)
	}
}

func TestRedisStore_Retention(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStore(rdb, "d7", 24*time.Hour)

	if err := s.Record(ctx, "abc", t0, 30*time.Minute); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if ttl := mr.TTL("dispatch:d7:pending"); ttl != 24*time.Hour {
		t.Errorf("expected pending retention, got %v", ttl)
	}
	if err := s.Abandon(ctx, "abc"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if ttl := mr.TTL("dispatch:d7:abandoned"); ttl != 24*time.Hour {
		t.Errorf("expected abandoned retention, got %v", ttl)
	}

	mr.FastForward(23 * time.Hour)
	if ok, err := s.IsAbandoned(ctx, "abc"); err != nil || !ok {
		t.Fatalf("expected abandoned within retention, got %v %v", ok, err)
	}
	if err := s.Abandon(ctx, "def"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	mr.FastForward(23 * time.Hour)
	if ok, _ := s.IsAbandoned(ctx, "abc"); !ok {
		t.Error("a later write must extend the retention")
	}
	mr.FastForward(2 * time.Hour)
	if ok, _ := s.IsAbandoned(ctx, "abc"); ok {
		t.Error("expected the abandoned set to expire after retention")
	}
}

func TestRedisStore_NoRetentionKeepsSets(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStore(rdb, "d7", 0)
	if err := s.Abandon(ctx, "abc"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if ttl := mr.TTL("dispatch:d7:abandoned"); ttl != 0 {
		t.Errorf("expected no TTL, got %v", ttl)
	}
}
