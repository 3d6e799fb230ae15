package track

import (
	"testing"
	"time"
)

func TestLocateInterpolates(t *testing.T) {

	tr := NewTrack(
		GeoPoint{Time: ts(200), Latitude: 20, Longitude: 20},
		GeoPoint{Time: ts(100), Latitude: 10, Longitude: 10},
	)

	fix, ok := tr.Locate(ts(150), DefaultWindow)

	if !ok {
		t.Fatalf("Expected a fix")
	}

	if fix.Latitude != 15 || fix.Longitude != 15 {
		t.Fatalf("Expected 15,15, got %s", fix)
	}

	if !fix.Interpolated {
		t.Fatalf("Expected fix to be interpolated")
	}

	if fix.Altitude != nil {
		t.Fatalf("Did not expect an altitude")
	}
}

func TestLocateExactMatch(t *testing.T) {

	alt := 12.5

	tr := NewTrack(
		GeoPoint{Time: ts(100), Latitude: 10.123456789, Longitude: -20.987654321, Altitude: &alt},
		GeoPoint{Time: ts(200), Latitude: 20, Longitude: 20},
	)

	for _, window := range []time.Duration{0, time.Second, DefaultWindow} {

		fix, ok := tr.Locate(ts(100), window)

		if !ok {
			t.Fatalf("Expected a fix with window %v", window)
		}

		if fix.Latitude != 10.123456789 || fix.Longitude != -20.987654321 {
			t.Fatalf("Expected stored coordinates, got %v,%v", fix.Latitude, fix.Longitude)
		}

		if fix.Interpolated {
			t.Fatalf("Did not expect exact match to be interpolated")
		}

		if fix.Altitude == nil || *fix.Altitude != alt {
			t.Fatalf("Expected altitude %v", alt)
		}
	}
}

func TestLocateAltitude(t *testing.T) {

	a1 := 100.0
	a2 := 200.0

	tr := NewTrack(
		GeoPoint{Time: ts(1000), Latitude: 1, Longitude: 1, Altitude: &a1},
		GeoPoint{Time: ts(1100), Latitude: 2, Longitude: 2, Altitude: &a2},
	)

	fix, ok := tr.Locate(ts(1025), DefaultWindow)

	if !ok {
		t.Fatalf("Expected a fix")
	}

	if fix.Altitude == nil || *fix.Altitude != 125 {
		t.Fatalf("Expected altitude 125, got %v", fix.Altitude)
	}
}

func TestLocateOutsideSpan(t *testing.T) {

	tr := NewTrack(
		GeoPoint{Time: ts(1000), Latitude: 10, Longitude: 10},
		GeoPoint{Time: ts(2000), Latitude: 20, Longitude: 20},
	)

	window := 60 * time.Second

	tests := []struct {
		at  int64
		ok  bool
		lat float64
	}{
		{at: 1000 - 61, ok: false},
		{at: 1000 - 60, ok: true, lat: 10},
		{at: 1000 - 1, ok: true, lat: 10},
		{at: 2000 + 30, ok: true, lat: 20},
		{at: 2000 + 60, ok: true, lat: 20},
		{at: 2000 + 3600, ok: false},
	}

	for _, test := range tests {

		fix, ok := tr.Locate(ts(test.at), window)

		if ok != test.ok {
			t.Fatalf("Expected ok=%t for %d, got %t", test.ok, test.at, ok)
		}

		if !ok {
			continue
		}

		if fix.Latitude != test.lat || fix.Interpolated {
			t.Fatalf("Expected clamped latitude %v for %d, got %s", test.lat, test.at, fix)
		}
	}
}

func TestLocateGap(t *testing.T) {

	// two recordings with a one hour pause in between
	tr := NewTrack(
		GeoPoint{Time: ts(1000), Latitude: 10, Longitude: 10},
		GeoPoint{Time: ts(1100), Latitude: 11, Longitude: 11},
		GeoPoint{Time: ts(4700), Latitude: 50, Longitude: 50},
		GeoPoint{Time: ts(4800), Latitude: 51, Longitude: 51},
	)

	window := 5 * time.Minute

	fix, ok := tr.Locate(ts(1200), window)

	if !ok || fix.Latitude != 11 || fix.Interpolated {
		t.Fatalf("Expected fix clamped to the end of the first recording, got %v %t", fix, ok)
	}

	fix, ok = tr.Locate(ts(4600), window)

	if !ok || fix.Latitude != 50 || fix.Interpolated {
		t.Fatalf("Expected fix clamped to the start of the second recording, got %v %t", fix, ok)
	}

	_, ok = tr.Locate(ts(2900), window)

	if ok {
		t.Fatalf("Expected no fix in the middle of a gap")
	}
}

func TestLocateEmptyTrack(t *testing.T) {

	var nil_track *Track

	for _, tr := range []*Track{NewTrack(), nil_track} {

		for _, at := range []int64{0, 1, 1000, 1 << 40} {

			_, ok := tr.Locate(ts(at), 24*time.Hour)

			if ok {
				t.Fatalf("Expected no fix for %d on an empty track", at)
			}
		}
	}
}

func TestLocateZeroTime(t *testing.T) {

	tr := NewTrack(GeoPoint{Time: ts(1000), Latitude: 10, Longitude: 10})

	_, ok := tr.Locate(time.Time{}, 24*time.Hour)

	if ok {
		t.Fatalf("Expected no fix for a zero capture time")
	}
}
