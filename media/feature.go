// Package media produces GeoJSON Feature documents for cloned photos that were assigned a
// GPS position, so that a run can be inspected on a map.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/tidwall/sjson"
	"github.com/whosonfirst/go-ioutil"
	"github.com/whosonfirst/go-writer/v3"
)

// type Coordinates stores a single longitude, latitude (and optional altitude) coordinate.
type Coordinates []float64

// type Geometry stores a GeoJSON geometry dictionary.
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates Coordinates `json:"coordinates"`
}

// type Properties stores a GeoJSON properties dictionary.
type Properties map[string]interface{}

// type Feature provides a GeoJSON struct.
type Feature struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Geometry   Geometry   `json:"geometry"`
}

// NewPhotoFeature returns a GeoJSON Feature for o. The boolean is false, and the Feature
// nil, unless o was cloned successfully with a GPS position.
func NewPhotoFeature(o *photo.Outcome) (*Feature, bool) {

	if o == nil || o.GPS == nil {
		return nil, false
	}

	// failed photos were never written
	if o.Status != photo.StatusOK {
		return nil, false
	}

	fix := o.GPS

	coords := Coordinates{
		fix.Longitude,
		fix.Latitude,
	}

	if fix.Altitude != nil {
		coords = append(coords, *fix.Altitude)
	}

	props := Properties{
		"media:path":         o.Path,
		"media:status":       string(o.Status),
		"media:rule":         o.Rule,
		"media:captured":     fix.Time.UTC().Format(time.RFC3339),
		"media:interpolated": fix.Interpolated,
	}

	if o.Result != nil {
		props["media:output"] = o.Result.OutputPath
		props["media:format"] = string(o.Result.Format)
		props["media:gps_added"] = o.Result.GPSAdded

		if o.Result.Fingerprint != "" {
			props["media:fingerprint"] = o.Result.Fingerprint
		}

		if o.Result.ImageHash != "" {
			props["media:imagehash"] = o.Result.ImageHash
		}
	}

	f := &Feature{
		Type:       "Feature",
		Properties: props,
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: coords,
		},
	}

	return f, true
}

// NewFeatureCollection returns a GeoJSON FeatureCollection containing a Feature for every
// successful outcome with a GPS position, in the order given.
func NewFeatureCollection(run_id string, outcomes []*photo.Outcome) ([]byte, error) {

	body := []byte(`{"type":"FeatureCollection","features":[]}`)

	body, err := sjson.SetBytes(body, "properties.media:run_id", run_id)

	if err != nil {
		return nil, fmt.Errorf("Failed to assign run ID, %w", err)
	}

	count := 0

	for _, o := range outcomes {

		f, ok := NewPhotoFeature(o)

		if !ok {
			continue
		}

		enc_f, err := json.Marshal(f)

		if err != nil {
			return nil, fmt.Errorf("Failed to marshal feature for %s, %w", o.Path, err)
		}

		body, err = sjson.SetRawBytes(body, "features.-1", enc_f)

		if err != nil {
			return nil, fmt.Errorf("Failed to append feature for %s, %w", o.Path, err)
		}

		count += 1
	}

	body, err = sjson.SetBytes(body, "properties.media:count", count)

	if err != nil {
		return nil, fmt.Errorf("Failed to assign count, %w", err)
	}

	return body, nil
}

// PublishFeatureCollection writes the FeatureCollection for outcomes to key in wr.
func PublishFeatureCollection(ctx context.Context, wr writer.Writer, key string, run_id string, outcomes []*photo.Outcome) error {

	body, err := NewFeatureCollection(run_id, outcomes)

	if err != nil {
		return err
	}

	fh, err := ioutil.NewReadSeekCloser(bytes.NewReader(body))

	if err != nil {
		return fmt.Errorf("Failed to create ReadSeekCloser for features, %w", err)
	}

	_, err = wr.Write(ctx, key, fh)

	if err != nil {
		return fmt.Errorf("Failed to write features to %s, %w", key, err)
	}

	return nil
}
