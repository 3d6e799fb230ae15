package track

import (
	"fmt"

	"github.com/tkrajina/gpxgo/gpx"
)

func parseGPX(body []byte) ([]GeoPoint, error) {

	g, err := gpx.ParseBytes(body)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse GPX document, %w", err)
	}

	pts := make([]GeoPoint, 0)

	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			pts = appendGPXPoints(pts, seg.Points)
		}
	}

	for _, rte := range g.Routes {
		pts = appendGPXPoints(pts, rte.Points)
	}

	pts = appendGPXPoints(pts, g.Waypoints)
	return pts, nil
}

func appendGPXPoints(pts []GeoPoint, gpx_pts []gpx.GPXPoint) []GeoPoint {

	for _, p := range gpx_pts {

		if p.Timestamp.IsZero() {
			continue
		}

		pt := GeoPoint{
			Time:      p.Timestamp.UTC(),
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		}

		if p.Elevation.NotNull() {
			alt := p.Elevation.Value()
			pt.Altitude = &alt
		}

		pts = append(pts, pt)
	}

	return pts
}
