// README: Mapping collaborator contract: geocoding and drive-time matrices.
package maps

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"smartdispatch/internal/types"
)

var (
	ErrUnresolvableAddress = errors.New("unresolvable address")
	ErrMatrixUnavailable   = errors.New("duration matrix unavailable")
	ErrServiceUnavailable  = errors.New("mapping service unavailable")
)

// Tactics selects a routing preference; values follow the console's route
// policy codes.
type Tactics int

const (
	TacticsDefault         Tactics = 0
	TacticsAvoidHighway    Tactics = 3
	TacticsAvoidCongestion Tactics = 5
	TacticsLeastFee        Tactics = 6
	TacticsLeastDistance   Tactics = 12
	TacticsLeastTime       Tactics = 13
)

// Mapper resolves addresses and produces n×n drive-time matrices in seconds.
type Mapper interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
	DurationMatrix(ctx context.Context, points []types.Point, tactics Tactics) ([][]int64, error)
	ReverseGeocode(ctx context.Context, p types.Point) (string, error)
}

const geocodeConcurrency = 4

// GeocodeAll resolves addresses concurrently, each distinct address once.
// The result is aligned with the input.
func GeocodeAll(ctx context.Context, m Mapper, addresses []string) ([]types.Point, error) {
	var (
		mu     sync.Mutex
		points = make(map[string]types.Point, len(addresses))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(geocodeConcurrency)

	seen := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		key := strings.TrimSpace(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		g.Go(func() error {
			p, err := m.Geocode(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			points[key] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]types.Point, len(addresses))
	for i, addr := range addresses {
		out[i] = points[strings.TrimSpace(addr)]
	}
	return out, nil
}
