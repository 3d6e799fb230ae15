package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/sfomuseum/go-media-clone/policy"
	"github.com/sfomuseum/go-media-clone/track"
	"github.com/tidwall/gjson"
	"github.com/whosonfirst/go-writer/v3"
)

func testOutcomes() []*photo.Outcome {

	alt := 12.0

	return []*photo.Outcome{
		{
			Path:   "a.jpg",
			Status: photo.StatusOK,
			Rule:   "keep",
			GPS: &track.GeoFix{
				Time:         time.Unix(150, 0),
				Latitude:     15,
				Longitude:    -15,
				Altitude:     &alt,
				Interpolated: true,
			},
			Result: &photo.Result{
				OutputPath:  "/out/a.jpg",
				Format:      policy.FormatJPEG,
				GPSAdded:    true,
				Fingerprint: "abc",
			},
		},
		{
			Path:   "b.jpg",
			Status: photo.StatusOK,
			Rule:   "keep",
		},
		{
			Path:   "c.jpg",
			Status: photo.StatusFailed,
			Error:  "broken",
			GPS:    &track.GeoFix{Time: time.Unix(200, 0), Latitude: 20, Longitude: 20},
		},
	}
}

func TestNewPhotoFeature(t *testing.T) {

	_, ok := NewPhotoFeature(&photo.Outcome{Path: "x.jpg"})

	if ok {
		t.Fatalf("Expected outcome without GPS to be skipped")
	}

	_, ok = NewPhotoFeature(testOutcomes()[2])

	if ok {
		t.Fatalf("Expected failed outcome to be skipped")
	}

	f, ok := NewPhotoFeature(testOutcomes()[0])

	if !ok {
		t.Fatalf("Expected feature")
	}

	if len(f.Geometry.Coordinates) != 3 || f.Geometry.Coordinates[0] != -15 || f.Geometry.Coordinates[1] != 15 {
		t.Fatalf("Unexpected coordinates %v", f.Geometry.Coordinates)
	}

	if f.Properties["media:output"] != "/out/a.jpg" {
		t.Fatalf("Unexpected properties %v", f.Properties)
	}
}

func TestPublishFeatureCollection(t *testing.T) {

	ctx := context.Background()

	root := t.TempDir()

	wr, err := writer.NewWriter(ctx, "fs://"+root)

	if err != nil {
		t.Fatalf("Failed to create writer, %v", err)
	}

	err = PublishFeatureCollection(ctx, wr, "features.geojson", "run123", testOutcomes())

	if err != nil {
		t.Fatalf("Failed to publish features, %v", err)
	}

	body, err := os.ReadFile(filepath.Join(root, "features.geojson"))

	if err != nil {
		t.Fatalf("Failed to read features, %v", err)
	}

	if gjson.GetBytes(body, "type").String() != "FeatureCollection" {
		t.Fatalf("Unexpected document %s", body)
	}

	if gjson.GetBytes(body, "features.#").Int() != 1 {
		t.Fatalf("Expected 1 feature, got %s", body)
	}

	if gjson.GetBytes(body, "properties.media:count").Int() != 1 {
		t.Fatalf("Unexpected count %s", body)
	}

	if gjson.GetBytes(body, "features.0.properties.media:path").String() != "a.jpg" {
		t.Fatalf("Unexpected feature %s", body)
	}

	if gjson.GetBytes(body, "features.0.properties.media:captured").String() != "1970-01-01T00:02:30Z" {
		t.Fatalf("Unexpected capture time %s", body)
	}
}
