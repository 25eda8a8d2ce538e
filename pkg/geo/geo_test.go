package geo

import (
	"math"
	"testing"

	"globerun/pkg/model"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   model.GeoPoint
		p2   model.GeoPoint
		want float64
	}{
		{
			name: "Same Point",
			p1:   model.GeoPoint{Lat: 0, Lng: 0},
			p2:   model.GeoPoint{Lat: 0, Lng: 0},
			want: 0,
		},
		{
			name: "Equator 1 degree",
			p1:   model.GeoPoint{Lat: 0, Lng: 0},
			p2:   model.GeoPoint{Lat: 0, Lng: 1},
			want: 111319, // Approx 111km
		},
		{
			name: "Adjacent street captures",
			p1:   model.GeoPoint{Lat: 40.7281, Lng: -73.9865},
			p2:   model.GeoPoint{Lat: 40.72814, Lng: -73.98628},
			want: 19, // Approx one third of a block
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			// Allow 5% margin due to float precision/earth radius variation
			margin := tt.want * 0.05
			if math.Abs(got-tt.want) > margin && tt.want != 0 {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
		})
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name string
		p1   model.GeoPoint
		p2   model.GeoPoint
		want float64
	}{
		{
			name: "Due North",
			p1:   model.GeoPoint{Lat: 0, Lng: 0},
			p2:   model.GeoPoint{Lat: 1, Lng: 0},
			want: 0,
		},
		{
			name: "Due East on equator",
			p1:   model.GeoPoint{Lat: 0, Lng: 0},
			p2:   model.GeoPoint{Lat: 0, Lng: 1},
			want: 90,
		},
		{
			name: "Due South",
			p1:   model.GeoPoint{Lat: 1, Lng: 0},
			p2:   model.GeoPoint{Lat: 0, Lng: 0},
			want: 180,
		},
		{
			name: "Due West on equator",
			p1:   model.GeoPoint{Lat: 0, Lng: 1},
			p2:   model.GeoPoint{Lat: 0, Lng: 0},
			want: 270,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(tt.p1, tt.p2)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("Bearing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{45, 45},
		{190, -170},
		{-190, 170},
		{-270, 90},
		{540, 180},
		{0, 0},
	}

	for _, tt := range tests {
		if got := NormalizeAngle(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
