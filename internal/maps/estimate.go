package maps

import (
	"context"
	"fmt"
	"math"

	"smartdispatch/internal/types"
)

const earthRadiusKm = 6371.0

// EstimateMapper derives drive times from straight-line distance at a fixed
// average speed. It wraps another mapper for geocoding and is used when no
// matrix service is configured.
type EstimateMapper struct {
	geo      Mapper
	speedKmh float64
}

func NewEstimateMapper(geo Mapper, speedKmh float64) *EstimateMapper {
	if speedKmh <= 0 {
		speedKmh = 30
	}
	return &EstimateMapper{geo: geo, speedKmh: speedKmh}
}

func (e *EstimateMapper) Geocode(ctx context.Context, address string) (types.Point, error) {
	if p, ok := types.ParsePoint(address); ok {
		return p, nil
	}
	if e.geo == nil {
		return types.Point{}, fmt.Errorf("%w: %q is not a coordinate", ErrUnresolvableAddress, address)
	}
	return e.geo.Geocode(ctx, address)
}

func (e *EstimateMapper) ReverseGeocode(ctx context.Context, p types.Point) (string, error) {
	if e.geo == nil {
		return p.String(), nil
	}
	return e.geo.ReverseGeocode(ctx, p)
}

func (e *EstimateMapper) DurationMatrix(_ context.Context, points []types.Point, _ Tactics) ([][]int64, error) {
	out := make([][]int64, len(points))
	for i, a := range points {
		out[i] = make([]int64, len(points))
		for j, b := range points {
			if i == j {
				continue
			}
			km := haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
			out[i][j] = int64(math.Round(km / e.speedKmh * 3600))
		}
	}
	return out, nil
}

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degreesToRadians(lat1))*math.Cos(degreesToRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
