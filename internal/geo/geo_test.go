package geo

import "testing"

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Gainesville to Orlando is roughly 155 km.
	d := Haversine(29.6516, -82.3248, 28.5384, -81.3789)
	if d < 140000 || d > 170000 {
		t.Fatalf("implausible distance: %f", d)
	}
}
