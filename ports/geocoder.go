package ports

import "context"

// Geocoder resolves a street address to coordinates. Lookups are best-effort:
// stand creation proceeds without coordinates when the lookup fails or times
// out.
type Geocoder interface {
	Geocode(ctx context.Context, address, plz string) (lat, lng float64, err error)
}
