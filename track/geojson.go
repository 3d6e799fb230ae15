package track

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// parseGeoJSON reads the shapes produced by common GPX-to-GeoJSON converters: LineString
// or MultiLineString features with a parallel "coordTimes" (or "times") property, and
// Point features with a "time" property. A third coordinate is read as the altitude.
func parseGeoJSON(body []byte) ([]GeoPoint, error) {

	if !gjson.ValidBytes(body) {
		return nil, errors.New("Invalid JSON")
	}

	var features []gjson.Result

	switch gjson.GetBytes(body, "type").String() {
	case "FeatureCollection":
		features = gjson.GetBytes(body, "features").Array()
	case "Feature":
		features = []gjson.Result{gjson.ParseBytes(body)}
	default:
		return nil, errors.New("Document is not a GeoJSON Feature or FeatureCollection")
	}

	pts := make([]GeoPoint, 0)

	for idx, f := range features {

		f_pts, err := parseGeoJSONFeature(f)

		if err != nil {
			return nil, fmt.Errorf("Failed to parse feature at offset %d, %w", idx, err)
		}

		pts = append(pts, f_pts...)
	}

	return pts, nil
}

func parseGeoJSONFeature(f gjson.Result) ([]GeoPoint, error) {

	geom_type := f.Get("geometry.type").String()
	coords := f.Get("geometry.coordinates")
	props := f.Get("properties")

	switch geom_type {
	case "Point":

		t_rsp := props.Get("time")

		if !t_rsp.Exists() {
			return nil, nil
		}

		t, err := parseGeoJSONTime(t_rsp)

		if err != nil {
			return nil, err
		}

		pt, err := geoPointFromCoords(coords, t)

		if err != nil {
			return nil, err
		}

		return []GeoPoint{pt}, nil

	case "LineString":

		times := coordTimes(props)

		if !times.Exists() {
			return nil, nil
		}

		return zipCoordTimes(coords.Array(), times.Array())

	case "MultiLineString":

		times := coordTimes(props)

		if !times.Exists() {
			return nil, nil
		}

		lines := coords.Array()
		line_times := times.Array()

		if len(lines) != len(line_times) {
			return nil, fmt.Errorf("MultiLineString has %d lines but %d time lists", len(lines), len(line_times))
		}

		pts := make([]GeoPoint, 0)

		for i, line := range lines {

			line_pts, err := zipCoordTimes(line.Array(), line_times[i].Array())

			if err != nil {
				return nil, err
			}

			pts = append(pts, line_pts...)
		}

		return pts, nil

	default:
		return nil, nil
	}
}

func coordTimes(props gjson.Result) gjson.Result {

	for _, k := range []string{"coordTimes", "coordinateProperties.times", "times"} {

		rsp := props.Get(k)

		if rsp.Exists() && rsp.IsArray() {
			return rsp
		}
	}

	return gjson.Result{}
}

func zipCoordTimes(coords []gjson.Result, times []gjson.Result) ([]GeoPoint, error) {

	if len(coords) != len(times) {
		return nil, fmt.Errorf("Have %d coordinates but %d times", len(coords), len(times))
	}

	pts := make([]GeoPoint, 0, len(coords))

	for i, c := range coords {

		t, err := parseGeoJSONTime(times[i])

		if err != nil {
			return nil, err
		}

		pt, err := geoPointFromCoords(c, t)

		if err != nil {
			return nil, err
		}

		pts = append(pts, pt)
	}

	return pts, nil
}

func geoPointFromCoords(c gjson.Result, t time.Time) (GeoPoint, error) {

	pos := c.Array()

	if len(pos) < 2 {
		return GeoPoint{}, fmt.Errorf("Invalid position '%s'", c.Raw)
	}

	pt := GeoPoint{
		Time:      t,
		Longitude: pos[0].Float(),
		Latitude:  pos[1].Float(),
	}

	if len(pos) > 2 {
		alt := pos[2].Float()
		pt.Altitude = &alt
	}

	return pt, nil
}

// parseGeoJSONTime accepts RFC 3339 strings or Unix timestamps in seconds or milliseconds.
func parseGeoJSONTime(rsp gjson.Result) (time.Time, error) {

	switch rsp.Type {
	case gjson.String:

		t, err := time.Parse(time.RFC3339Nano, rsp.String())

		if err != nil {
			return time.Time{}, fmt.Errorf("Failed to parse time '%s', %w", rsp.String(), err)
		}

		return t.UTC(), nil

	case gjson.Number:

		ts := rsp.Int()

		if ts > 1e12 {
			return time.UnixMilli(ts).UTC(), nil
		}

		return time.Unix(ts, 0).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("Invalid time value '%s'", rsp.Raw)
	}
}
