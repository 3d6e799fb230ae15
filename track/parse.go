package track

import (
	"bytes"
	"path/filepath"
	"strings"
)

const (
	formatUnknown = iota
	formatGPX
	formatGeoJSON
)

func parseSource(src *RawSource) ([]GeoPoint, int, error) {

	if src == nil {
		return nil, 0, &SourceParseError{Source: "", Err: ErrUnknownFormat}
	}

	var pts []GeoPoint
	var err error

	body := cleanBody(src.Body)

	switch sniffFormat(src.Name, body) {
	case formatGPX:
		pts, err = parseGPX(body)
	case formatGeoJSON:
		pts, err = parseGeoJSON(body)
	default:
		err = ErrUnknownFormat
	}

	if err != nil {
		return nil, 0, &SourceParseError{Source: src.Name, Err: err}
	}

	valid := pts[:0]

	for _, pt := range pts {

		if !coordsValid(pt.Latitude, pt.Longitude) {
			continue
		}

		valid = append(valid, pt)
	}

	dropped := len(pts) - len(valid)

	if len(valid) == 0 {
		return nil, dropped, &SourceParseError{Source: src.Name, Err: ErrNoPoints}
	}

	return valid, dropped, nil
}

// cleanBody removes a leading UTF-8 byte order mark and any surrounding whitespace.
func cleanBody(body []byte) []byte {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	return bytes.TrimSpace(body)
}

// sniffFormat expects a body which has already been passed through cleanBody.
func sniffFormat(name string, body []byte) int {

	switch strings.ToLower(filepath.Ext(name)) {
	case ".gpx":
		return formatGPX
	case ".geojson", ".json":
		return formatGeoJSON
	}

	switch {
	case bytes.HasPrefix(body, []byte("{")):
		return formatGeoJSON
	case bytes.HasPrefix(body, []byte("<")) && bytes.Contains(body, []byte("<gpx")):
		return formatGPX
	default:
		return formatUnknown
	}
}

// coordsValid rejects out-of-range coordinates and the 0,0 "null island" that
// receivers report before they have a fix.
func coordsValid(lat, lon float64) bool {

	if lat == 0 && lon == 0 {
		return false
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}

	return true
}
