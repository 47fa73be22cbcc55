// README: Scenario cases: environment, good/junk/duplicate orders, decline, ledger keys, races and load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"smartdispatch/internal/modules/detour"
	"smartdispatch/internal/modules/dispatch"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// goodFingerprint is set once the good order matched.
	goodFingerprint string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	fmt.Printf("driver %s against %s\n", r.cfg.DriverID, r.cfg.BaseURL)
	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency.Round(time.Millisecond))
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

// The scenario runs on "lat,lng" stops so it works with the estimating
// mapper as well as with Google Maps. The committed route runs north-east
// in a straight line; the good order sits on it and the junk order is
// some 40 km off to the north-west.
var (
	committed = detour.DriverState{
		Location:   "32.000000,121.000000",
		Pickups:    []string{"32.010000,121.010000"},
		Deliveries: []string{"32.100000,121.100000"},
	}
	goodOrder = order{Pickup: "32.020000,121.020000", Delivery: "32.090000,121.090000", Price: "80"}
	junkOrder = order{Pickup: "32.300000,120.700000", Delivery: "32.310000,120.710000", Price: "30"}
)

type order struct {
	Pickup   string `json:"pickup"`
	Delivery string `json:"delivery"`
	Price    string `json:"price"`
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name: "Env: API health",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				status, _, err := r.call(ctx, http.MethodGet, "/health", nil, nil)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", status)}
				}
				return Result{Status: StatusPass, Latency: time.Since(start)}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Setup: threshold mode",
			Run: func(ctx context.Context, r *Runner) Result {
				var resp struct {
					Name string `json:"mode_name"`
				}
				status, _, err := r.call(ctx, http.MethodPut, "/driver_mode", map[string]string{"mode": "mode2"}, &resp)
				if err != nil || status != http.StatusOK || resp.Name != string(dispatch.ModeThreshold) {
					return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d mode=%s err=%v", status, resp.Name, err)}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Scenario: good order is matched",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				dec, res := r.evaluate(ctx, goodOrder)
				if dec == nil {
					return res
				}
				if dec.Status != dispatch.StatusMatched {
					return Result{Status: StatusFail, Note: fmt.Sprintf("%s/%s %s", dec.Status, dec.ReasonCode, dec.Reason)}
				}
				r.goodFingerprint = dec.Fingerprint
				return Result{Status: StatusPass, Latency: time.Since(start), Note: fmt.Sprintf("detour=%.1fmin", *dec.DetourMinutes)}
			},
		},
		expectDecision("Scenario: junk order is rejected", junkOrder, dispatch.StatusRejected, dispatch.ReasonTooFar),
		expectDecision("Scenario: duplicate good order is ignored", goodOrder, dispatch.StatusIgnored, dispatch.ReasonCooldown),
		{
			Name: "Ledger: pushed key carries the cooldown TTL",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				if r.goodFingerprint == "" {
					return Result{Status: StatusSkip, Note: "good order did not match"}
				}
				key := fmt.Sprintf("dispatch:%s:pushed:%s", r.cfg.DriverID, r.goodFingerprint)
				ttl, err := r.redis.TTL(ctx, key).Result()
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if ttl <= 0 {
					return Result{Status: StatusFail, Note: fmt.Sprintf("%s ttl=%s", key, ttl)}
				}
				pending, err := r.redis.HExists(ctx, fmt.Sprintf("dispatch:%s:pending", r.cfg.DriverID), r.goodFingerprint).Result()
				if err != nil || !pending {
					return Result{Status: StatusFail, Note: fmt.Sprintf("not pending: %v", err)}
				}
				return Result{Status: StatusPass, Note: "ttl=" + ttl.Round(time.Second).String()}
			},
		},
		{
			Name: "Scenario: declined order stays suppressed",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.goodFingerprint == "" {
					return Result{Status: StatusSkip, Note: "good order did not match"}
				}
				body := map[string]any{"fingerprint": r.goodFingerprint, "accepted": false, "continue_searching": true}
				status, raw, err := r.call(ctx, http.MethodPost, "/order_response", body, nil)
				if err != nil || status != http.StatusOK {
					return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d err=%v %s", status, err, raw)}
				}
				dec, res := r.evaluate(ctx, goodOrder)
				if dec == nil {
					return res
				}
				if dec.ReasonCode != dispatch.ReasonAbandoned {
					return Result{Status: StatusFail, Note: fmt.Sprintf("%s/%s", dec.Status, dec.ReasonCode)}
				}
				if r.redis != nil {
					ok, err := r.redis.SIsMember(ctx, fmt.Sprintf("dispatch:%s:abandoned", r.cfg.DriverID), r.goodFingerprint).Result()
					if err != nil || !ok {
						return Result{Status: StatusFail, Note: fmt.Sprintf("not in abandoned set: %v", err)}
					}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Env: settings snapshot saved",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "db not configured"}
				}
				var mode string
				err := r.db.QueryRow(ctx, "SELECT mode FROM dispatch_settings WHERE driver_id=$1", r.cfg.DriverID).Scan(&mode)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if mode != string(dispatch.ModeThreshold) {
					return Result{Status: StatusFail, Note: "mode=" + mode}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Concurrency: identical orders match once",
			Run:  concurrentIdentical,
		},
		{
			Name: "Perf: evaluate throughput",
			Run:  perfLoad,
		},
	}
}

func expectDecision(name string, o order, status dispatch.Status, reason dispatch.ReasonCode) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			dec, res := r.evaluate(ctx, o)
			if dec == nil {
				return res
			}
			if dec.Status != status || dec.ReasonCode != reason {
				return Result{Status: StatusFail, Note: fmt.Sprintf("got %s/%s %s", dec.Status, dec.ReasonCode, dec.Reason)}
			}
			return Result{Status: StatusPass, Latency: time.Since(start), Note: dec.Reason}
		},
	}
}

// evaluate returns a nil decision and a failed result when the call fails.
func (r *Runner) evaluate(ctx context.Context, o order) (*dispatch.Decision, Result) {
	body := map[string]any{"current_state": committed, "new_order": o}
	var dec dispatch.Decision
	status, raw, err := r.call(ctx, http.MethodPost, "/evaluate_new_order", body, &dec)
	if err != nil {
		return nil, Result{Status: StatusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return nil, Result{Status: StatusFail, Note: fmt.Sprintf("status=%d %s", status, raw)}
	}
	return &dec, Result{}
}

func (r *Runner) call(ctx context.Context, method, path string, body, out any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Driver-ID", r.cfg.DriverID)
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, err
		}
	}
	return resp.StatusCode, raw, nil
}

// concurrentIdentical fires the same fresh order from many goroutines;
// exactly one may be matched.
func concurrentIdentical(ctx context.Context, r *Runner) Result {
	o := goodOrder
	o.Price = fmt.Sprintf("%d", 100+time.Now().Unix()%900)

	var matched, ignored, failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, _ := r.evaluate(ctx, o)
			switch {
			case dec == nil:
				failed.Add(1)
			case dec.Status == dispatch.StatusMatched:
				matched.Add(1)
			case dec.ReasonCode == dispatch.ReasonCooldown:
				ignored.Add(1)
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("matched=%d ignored=%d failed=%d", matched.Load(), ignored.Load(), failed.Load())
	if matched.Load() == 1 && failed.Load() == 0 {
		return Result{Status: StatusPass, Note: note}
	}
	return Result{Status: StatusFail, Note: note}
}

// perfLoad evaluates distinct orders for the configured duration. Each
// price is new, so every request geocodes and solves.
func perfLoad(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount, seq atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				o := junkOrder
				n := seq.Add(1)
				o.Price = fmt.Sprintf("%d.%02d", 1+n/100, n%100)
				if dec, _ := r.evaluate(ctx, o); dec == nil {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}
