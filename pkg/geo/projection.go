package geo

import (
	"math"

	"globerun/pkg/model"
)

// ToLocal converts a target coordinate into the local Cartesian frame of an
// origin scene. The frame is oriented so that local +Z points forward along
// the origin heading and local +X points to its right. Inter-scene distances
// are tens of meters, so an equirectangular approximation is used instead of
// a full geodesic solution.
//
// scale is the meters-per-local-unit calibration factor; the returned
// coordinates are in renderer units, not meters.
func ToLocal(origin model.GeoPoint, originHeading float64, target model.GeoPoint, scale float64) (x, z float64) {
	northM := (target.Lat - origin.Lat) * MetersPerDegreeLat
	eastM := (target.Lng - origin.Lng) * MetersPerDegreeLat * math.Cos(origin.Lat*math.Pi/180.0)

	theta := originHeading * math.Pi / 180.0
	sin, cos := math.Sincos(theta)

	// Project (east, north) onto the heading frame: forward = (sin, cos),
	// right = (cos, -sin).
	x = (eastM*cos - northM*sin) / scale
	z = (eastM*sin + northM*cos) / scale
	return x, z
}

// ToGeo is the exact inverse of ToLocal up to floating-point error. It is
// used to project the live camera position back onto the geographic map.
func ToGeo(origin model.GeoPoint, originHeading float64, x, z, scale float64) model.GeoPoint {
	theta := originHeading * math.Pi / 180.0
	sin, cos := math.Sincos(theta)

	xm := x * scale
	zm := z * scale

	eastM := xm*cos + zm*sin
	northM := -xm*sin + zm*cos

	return model.GeoPoint{
		Lat: origin.Lat + northM/MetersPerDegreeLat,
		Lng: origin.Lng + eastM/(MetersPerDegreeLat*math.Cos(origin.Lat*math.Pi/180.0)),
	}
}
