package maps

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"smartdispatch/internal/types"
)

// StaticMapper is an in-memory Mapper for tests and demos. Places sit on a
// line; one unit of distance takes one minute unless overridden.
type StaticMapper struct {
	mu           sync.Mutex
	places       map[string]types.Point
	unresolvable map[string]bool
	overrides    map[[2]types.Point]int64
	matrixErr    error
	geocodes     int
	matrixCalls  int
}

func NewStaticMapper() *StaticMapper {
	return &StaticMapper{
		places:       make(map[string]types.Point),
		unresolvable: make(map[string]bool),
		overrides:    make(map[[2]types.Point]int64),
	}
}

// Place registers address at position x (minutes from the origin of the line).
func (s *StaticMapper) Place(address string, x float64) *StaticMapper {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[strings.TrimSpace(address)] = types.Point{Lat: 0, Lng: x}
	return s
}

// SetDuration overrides the drive time from a to b in seconds.
func (s *StaticMapper) SetDuration(a, b string, seconds int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[[2]types.Point{s.places[a], s.places[b]}] = seconds
}

func (s *StaticMapper) MarkUnresolvable(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unresolvable[strings.TrimSpace(address)] = true
}

// MatrixErr makes every following DurationMatrix call fail with err.
func (s *StaticMapper) MatrixErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matrixErr = err
}

func (s *StaticMapper) MatrixCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matrixCalls
}

func (s *StaticMapper) GeocodeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geocodes
}

func (s *StaticMapper) Geocode(_ context.Context, address string) (types.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geocodes++
	addr := strings.TrimSpace(address)
	if s.unresolvable[addr] {
		return types.Point{}, fmt.Errorf("%w: %q", ErrUnresolvableAddress, addr)
	}
	if p, ok := s.places[addr]; ok {
		return p, nil
	}
	if p, ok := types.ParsePoint(addr); ok {
		return p, nil
	}
	return types.Point{}, fmt.Errorf("%w: %q", ErrUnresolvableAddress, addr)
}

func (s *StaticMapper) ReverseGeocode(_ context.Context, p types.Point) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, q := range s.places {
		if q == p {
			return addr, nil
		}
	}
	return "", fmt.Errorf("%w: no address at %s", ErrUnresolvableAddress, p)
}

func (s *StaticMapper) DurationMatrix(_ context.Context, points []types.Point, _ Tactics) ([][]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matrixCalls++
	if s.matrixErr != nil {
		return nil, s.matrixErr
	}
	out := make([][]int64, len(points))
	for i, a := range points {
		out[i] = make([]int64, len(points))
		for j, b := range points {
			if i == j {
				continue
			}
			if v, ok := s.overrides[[2]types.Point{a, b}]; ok {
				out[i][j] = v
				continue
			}
			d := a.Lng - b.Lng
			if d < 0 {
				d = -d
			}
			out[i][j] = int64(d * 60)
		}
	}
	return out, nil
}
