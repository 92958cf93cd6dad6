// Package geo provides the small amount of spherical geometry the ranking
// engine needs: great-circle distance, bounding boxes for cheap prefiltering
// and coordinate rounding for cache keys.
package geo

import (
	"math"

	"github.com/poiesic/wayfinder/core"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// kmPerDegreeLat is the length of one degree of latitude.
const kmPerDegreeLat = 111.32

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b core.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Distance returns the distance between two optional points, or nil when either is missing.
func Distance(a, b *core.GeoPoint) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := Haversine(*a, *b)
	return &d
}

// Box is an axis-aligned latitude/longitude rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a box that contains every point within radiusKm of center.
// The box over-approximates the circle; callers confirm with Haversine.
func BoundingBox(center core.GeoPoint, radiusKm float64) Box {
	dLat := radiusKm / kmPerDegreeLat
	box := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}

	cosLat := math.Cos(center.Lat * math.Pi / 180.0)
	if cosLat < 1e-6 || box.MinLat == -90 || box.MaxLat == 90 {
		return box
	}
	dLng := radiusKm / (kmPerDegreeLat * cosLat)
	if dLng >= 180 {
		return box
	}
	box.MinLng = center.Lng - dLng
	box.MaxLng = center.Lng + dLng
	return box
}

// Contains reports whether p falls inside the box. Boxes crossing the
// antimeridian have MinLng < -180 or MaxLng > 180 and wrap accordingly.
func (b Box) Contains(p core.GeoPoint) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	lng := p.Lng
	switch {
	case b.MinLng < -180 && lng > b.MaxLng:
		lng -= 360
	case b.MaxLng > 180 && lng < b.MinLng:
		lng += 360
	}
	return lng >= b.MinLng && lng <= b.MaxLng
}

// Round rounds a coordinate to 4 decimal places, roughly 11 m at the equator.
func Round(p core.GeoPoint) core.GeoPoint {
	return core.GeoPoint{
		Lat: math.Round(p.Lat*1e4) / 1e4,
		Lng: math.Round(p.Lng*1e4) / 1e4,
	}
}
