package track

import (
	"fmt"
	"sort"
	"time"
)

// DefaultWindow is the extrapolation window used when none has been configured.
const DefaultWindow = 5 * time.Minute

// GeoFix is the position attributed to a photo's capture time.
type GeoFix struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude,omitempty"`
	// Interpolated is true when the fix was blended from the two points either side of Time.
	Interpolated bool `json:"interpolated"`
}

// String implements fmt.Stringer
func (f *GeoFix) String() string {
	return fmt.Sprintf("%.6f,%.6f", f.Latitude, f.Longitude)
}

// Locate returns the position at ts. A timestamp equal to a stored point returns that point.
// A timestamp between two points returns a linear blend of the pair, provided the pair is
// no more than window apart. Otherwise the nearest point is used if it is within window of
// ts, and no fix is returned if it is not. An empty track never has a fix.
func (t *Track) Locate(ts time.Time, window time.Duration) (*GeoFix, bool) {

	if t.Len() == 0 || ts.IsZero() {
		return nil, false
	}

	pts := t.points
	count := len(pts)

	idx := sort.Search(count, func(i int) bool {
		return !pts[i].Time.Before(ts)
	})

	if idx < count && pts[idx].Time.Equal(ts) {
		return fixFromPoint(ts, pts[idx]), true
	}

	// before the first point
	if idx == 0 {
		return clampTo(ts, pts[0], window)
	}

	// after the last point
	if idx == count {
		return clampTo(ts, pts[count-1], window)
	}

	before := pts[idx-1]
	after := pts[idx]

	span := after.Time.Sub(before.Time)

	// a gap in the log (a pause in recording, or two disjoint tracks) is never
	// bridged; each side is treated like the end of a track.
	if span > window {

		if ts.Sub(before.Time) <= after.Time.Sub(ts) {
			return clampTo(ts, before, window)
		}

		return clampTo(ts, after, window)
	}

	f := float64(ts.Sub(before.Time)) / float64(span)

	fix := &GeoFix{
		Time:         ts,
		Latitude:     lerp(before.Latitude, after.Latitude, f),
		Longitude:    lerp(before.Longitude, after.Longitude, f),
		Interpolated: true,
	}

	if before.Altitude != nil && after.Altitude != nil {
		alt := lerp(*before.Altitude, *after.Altitude, f)
		fix.Altitude = &alt
	}

	return fix, true
}

func clampTo(ts time.Time, pt GeoPoint, window time.Duration) (*GeoFix, bool) {

	d := ts.Sub(pt.Time)

	if d < 0 {
		d = -d
	}

	if d > window {
		return nil, false
	}

	return fixFromPoint(ts, pt), true
}

func fixFromPoint(ts time.Time, pt GeoPoint) *GeoFix {

	fix := &GeoFix{
		Time:      ts,
		Latitude:  pt.Latitude,
		Longitude: pt.Longitude,
	}

	if pt.Altitude != nil {
		alt := *pt.Altitude
		fix.Altitude = &alt
	}

	return fix
}

func lerp(a, b, f float64) float64 {
	return a + f*(b-a)
}
