// README: Google Maps backed Mapper: geocoding with place fallback, chunked distance matrix, reverse geocoding.
package maps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	gmaps "googlemaps.github.io/maps"

	"smartdispatch/internal/platform/metrics"
	"smartdispatch/internal/platform/resilience"
	"smartdispatch/internal/types"
)

const (
	// Distance Matrix API request limits.
	maxMatrixElements = 100
	maxMatrixSide     = 25

	matrixConcurrency = 3
)

type GoogleConfig struct {
	APIKey   string
	BaseURL  string
	Language string
	Region   string
	Timeout  time.Duration
	Retries  int
}

// GoogleMapper talks to the Google Maps web services. Calls go through a
// circuit breaker and retry transient failures with backoff.
type GoogleMapper struct {
	client  *gmaps.Client
	cfg     GoogleConfig
	cache   GeocodeCache
	breaker *resilience.Breaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewGoogleMapper creates a mapper with the given API key. cache may be nil.
func NewGoogleMapper(cfg GoogleConfig, cache GeocodeCache, m *metrics.Metrics, logger *slog.Logger) (*GoogleMapper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []gmaps.ClientOption{gmaps.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, gmaps.WithBaseURL(cfg.BaseURL))
	}
	client, err := gmaps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	breaker := resilience.NewBreaker(
		resilience.DefaultBreakerConfig("google-maps"),
		logger,
		func(err error) bool { return errors.Is(err, ErrServiceUnavailable) },
		m.SetBreaker,
	)
	return &GoogleMapper{
		client:  client,
		cfg:     cfg,
		cache:   cache,
		breaker: breaker,
		metrics: m,
		logger:  logger,
	}, nil
}

func (g *GoogleMapper) Geocode(ctx context.Context, address string) (types.Point, error) {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return types.Point{}, fmt.Errorf("%w: empty address", ErrUnresolvableAddress)
	}
	if p, ok := types.ParsePoint(addr); ok {
		return p, nil
	}
	if g.cache != nil {
		p, ok, err := g.cache.Get(ctx, addr)
		if err != nil {
			g.logger.Warn("geocode cache read failed", "error", err)
		} else if ok {
			return p, nil
		}
	}

	v, err, _ := g.group.Do(addr, func() (interface{}, error) {
		p, err := g.lookup(ctx, addr)
		if err != nil {
			return nil, err
		}
		if g.cache != nil {
			if err := g.cache.Set(ctx, addr, p); err != nil {
				g.logger.Warn("geocode cache write failed", "error", err)
			}
		}
		return p, nil
	})
	g.metrics.ObserveMapping("geocode", err)
	if err != nil {
		return types.Point{}, err
	}
	return v.(types.Point), nil
}

func (g *GoogleMapper) lookup(ctx context.Context, addr string) (types.Point, error) {
	var p types.Point
	err := g.call(ctx, func(ctx context.Context) error {
		results, err := g.client.Geocode(ctx, &gmaps.GeocodingRequest{
			Address:  addr,
			Language: g.cfg.Language,
			Region:   g.cfg.Region,
		})
		if err != nil {
			return classify(err, ErrUnresolvableAddress)
		}
		if len(results) == 0 {
			// Landmark names often miss in the geocoder but hit in Places.
			p, err = g.findPlace(ctx, addr)
			return err
		}
		loc := results[0].Geometry.Location
		p = types.Point{Lat: loc.Lat, Lng: loc.Lng}
		return nil
	})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocode %q: %w", addr, err)
	}
	return p, nil
}

func (g *GoogleMapper) DurationMatrix(ctx context.Context, points []types.Point, tactics Tactics) ([][]int64, error) {
	n := len(points)
	if n == 0 {
		return [][]int64{}, nil
	}
	if n == 1 {
		return [][]int64{{0}}, nil
	}
	if n > maxMatrixSide {
		return nil, fmt.Errorf("%w: %d stops exceeds %d", ErrMatrixUnavailable, n, maxMatrixSide)
	}

	locs := make([]string, n)
	for i, p := range points {
		locs[i] = p.String()
	}
	rowsPerCall := maxMatrixElements / n
	if rowsPerCall < 1 {
		rowsPerCall = 1
	}

	out := make([][]int64, n)
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(matrixConcurrency)
	for start := 0; start < n; start += rowsPerCall {
		end := min(start+rowsPerCall, n)
		eg.Go(func() error {
			return g.fetchRows(ectx, locs, start, end, tactics, out)
		})
	}
	err := eg.Wait()
	g.metrics.ObserveMapping("matrix", err)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i][i] = 0
	}
	return out, nil
}

// fetchRows fills out[start:end]; callers give each goroutine a disjoint range.
func (g *GoogleMapper) fetchRows(ctx context.Context, locs []string, start, end int, tactics Tactics, out [][]int64) error {
	req := &gmaps.DistanceMatrixRequest{
		Origins:      locs[start:end],
		Destinations: locs,
		Mode:         gmaps.TravelModeDriving,
		Language:     g.cfg.Language,
	}
	traffic := applyTactics(req, tactics)

	return g.call(ctx, func(ctx context.Context) error {
		resp, err := g.client.DistanceMatrix(ctx, req)
		if err != nil {
			return classify(err, ErrMatrixUnavailable)
		}
		if len(resp.Rows) != end-start {
			return fmt.Errorf("%w: got %d rows, want %d", ErrMatrixUnavailable, len(resp.Rows), end-start)
		}
		for r, row := range resp.Rows {
			if len(row.Elements) != len(locs) {
				return fmt.Errorf("%w: row %d has %d elements", ErrMatrixUnavailable, start+r, len(row.Elements))
			}
			secs := make([]int64, len(locs))
			for c, el := range row.Elements {
				if start+r == c {
					continue
				}
				if el == nil || el.Status != "OK" {
					status := "missing"
					if el != nil {
						status = el.Status
					}
					return fmt.Errorf("%w: %s -> %s: %s", ErrMatrixUnavailable, locs[start+r], locs[c], status)
				}
				d := el.Duration
				if traffic && el.DurationInTraffic > 0 {
					d = el.DurationInTraffic
				}
				secs[c] = int64(d / time.Second)
			}
			out[start+r] = secs
		}
		return nil
	})
}

// applyTactics maps a route policy onto request options and reports whether
// traffic-aware durations should be used.
func applyTactics(req *gmaps.DistanceMatrixRequest, t Tactics) bool {
	switch t {
	case TacticsAvoidHighway:
		req.Avoid = gmaps.AvoidHighways
	case TacticsLeastFee:
		req.Avoid = gmaps.AvoidTolls
	case TacticsAvoidCongestion, TacticsLeastTime:
		req.DepartureTime = "now"
		req.TrafficModel = gmaps.TrafficModelBestGuess
		return true
	}
	return false
}

func (g *GoogleMapper) ReverseGeocode(ctx context.Context, p types.Point) (string, error) {
	var addr string
	err := g.call(ctx, func(ctx context.Context) error {
		results, err := g.client.ReverseGeocode(ctx, &gmaps.GeocodingRequest{
			LatLng:   &gmaps.LatLng{Lat: p.Lat, Lng: p.Lng},
			Language: g.cfg.Language,
		})
		if err != nil {
			return classify(err, ErrUnresolvableAddress)
		}
		if len(results) == 0 {
			return fmt.Errorf("%w: no address at %s", ErrUnresolvableAddress, p)
		}
		addr = results[0].FormattedAddress
		return nil
	})
	g.metrics.ObserveMapping("reverse_geocode", err)
	return addr, err
}

// call runs fn through the breaker with per-attempt timeouts and retries.
func (g *GoogleMapper) call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, resilience.Retry(ctx, g.cfg.Retries, 200*time.Millisecond, isTransient, func() error {
			cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()
			return fn(cctx)
		})
	})
	if errors.Is(err, resilience.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return err
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// classify sorts a client error into not-found (notFound), a permanent
// outage, or a transient outage worth retrying.
func classify(err error, notFound error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ZERO_RESULTS"), strings.Contains(msg, "NOT_FOUND"), strings.Contains(msg, "INVALID_REQUEST"):
		return fmt.Errorf("%w: %v", notFound, err)
	case strings.Contains(msg, "REQUEST_DENIED"), strings.Contains(msg, "OVER_DAILY_LIMIT"), strings.Contains(msg, "MAX_"):
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	default:
		return &transientError{err: fmt.Errorf("%w: %v", ErrServiceUnavailable, err)}
	}
}
