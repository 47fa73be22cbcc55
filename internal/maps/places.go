package maps

import (
	"context"
	"fmt"

	gmaps "googlemaps.github.io/maps"

	"smartdispatch/internal/types"
)

// findPlace resolves a landmark or shop name through Places text search.
// Drivers type names like "东站北广场" that the geocoder rejects.
func (g *GoogleMapper) findPlace(ctx context.Context, query string) (types.Point, error) {
	resp, err := g.client.TextSearch(ctx, &gmaps.TextSearchRequest{
		Query:    query,
		Language: g.cfg.Language,
		Region:   g.cfg.Region,
	})
	if err != nil {
		return types.Point{}, classify(err, ErrUnresolvableAddress)
	}
	for _, r := range resp.Results {
		loc := r.Geometry.Location
		if loc.Lat == 0 && loc.Lng == 0 {
			continue
		}
		g.logger.Debug("address resolved by place search", "query", query, "place", r.Name)
		return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
	}
	return types.Point{}, fmt.Errorf("%w: no place matches %q", ErrUnresolvableAddress, query)
}
