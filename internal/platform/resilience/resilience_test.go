package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func TestBackoffBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 1; attempt <= 6; attempt++ {
		nominal := base * time.Duration(1<<uint(attempt-1))
		if nominal > time.Second {
			nominal = time.Second
		}
		for i := 0; i < 50; i++ {
			d := Backoff(base, time.Second, attempt)
			if d < nominal*3/4 || d > nominal*5/4 {
				t.Fatalf("attempt %d: %v outside [%v, %v]", attempt, d, nominal*3/4, nominal*5/4)
			}
		}
	}
	if Backoff(base, time.Second, 0) != 0 {
		t.Error("attempt 0 should not wait")
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 4, time.Millisecond, func(error) bool { return true }, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), 4, time.Millisecond, func(err error) bool { return errors.Is(err, errTransient) }, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected single call with permanent error, got err=%v calls=%d", err, calls)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 2
	var opened bool
	b := NewBreaker(cfg, nil, nil, func(_ string, open bool) { opened = open })

	for i := 0; i < 2; i++ {
		_, _ = b.Execute(func() (interface{}, error) { return nil, errTransient })
	}
	if !b.Open() || !opened {
		t.Fatal("expected breaker to be open")
	}
	_, err := b.Execute(func() (interface{}, error) { return "ok", nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 1
	notFound := errors.New("not found")
	b := NewBreaker(cfg, nil, func(err error) bool { return !errors.Is(err, notFound) }, nil)
	for i := 0; i < 3; i++ {
		if _, err := b.Execute(func() (interface{}, error) { return nil, notFound }); !errors.Is(err, notFound) {
			t.Fatalf("expected passthrough error, got %v", err)
		}
	}
	if b.Open() {
		t.Fatal("client errors must not trip the breaker")
	}
}
