package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sfomuseum/go-media-clone/operations/process"
	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/sfomuseum/go-media-clone/policy"
	"github.com/sfomuseum/go-media-clone/track"
)

func testReport(run_id string, started time.Time) *process.Report {

	ok := &photo.Outcome{
		Path:   "a.jpg",
		Status: photo.StatusOK,
		Rule:   "keep",
		GPS:    &track.GeoFix{Latitude: 37.5, Longitude: -122.25},
		Result: &photo.Result{
			OutputPath:  "/out/a.jpg",
			Format:      policy.FormatJPEG,
			Fingerprint: "abc",
		},
	}

	failed := &photo.Outcome{
		Path:   "b.jpg",
		Status: photo.StatusFailed,
		Rule:   "keep",
		Error:  "Failed to clone 'b.jpg' (decode), bad",
	}

	skipped := &photo.Outcome{
		Path:   "c.jpg",
		Status: photo.StatusSkipped,
		Error:  "cancelled",
	}

	return &process.Report{
		RunID:     run_id,
		Started:   started,
		Finished:  started.Add(time.Minute),
		Workers:   4,
		Cancelled: true,
		Total:     3,
		Attempted: 2,
		Succeeded: 1,
		Failed:    1,
		Skipped:   1,
		GPSAdded:  1,
		Outcomes:  []*photo.Outcome{ok, failed, skipped},
		Failures:  []*photo.Outcome{failed},
	}
}

func TestJournal(t *testing.T) {

	ctx := context.Background()

	j, err := Open(ctx, filepath.Join(t.TempDir(), "journal.db"))

	if err != nil {
		t.Fatalf("Failed to open journal, %v", err)
	}

	defer j.Close()

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	err = j.Record(ctx, testReport("run1", first))

	if err != nil {
		t.Fatalf("Failed to record run1, %v", err)
	}

	err = j.Record(ctx, testReport("run2", second))

	if err != nil {
		t.Fatalf("Failed to record run2, %v", err)
	}

	// recording a run again replaces it
	err = j.Record(ctx, testReport("run2", second))

	if err != nil {
		t.Fatalf("Failed to record run2 twice, %v", err)
	}

	runs, err := j.Runs(ctx)

	if err != nil {
		t.Fatalf("Failed to list runs, %v", err)
	}

	if len(runs) != 2 || runs[0].RunID != "run2" {
		t.Fatalf("Expected 2 runs, most recent first, got %v", runs)
	}

	if !runs[0].Cancelled || runs[0].Succeeded != 1 || !runs[0].Started.Equal(second) {
		t.Fatalf("Unexpected run %+v", runs[0])
	}

	all, err := j.Outcomes(ctx, "run2", "")

	if err != nil {
		t.Fatalf("Failed to list outcomes, %v", err)
	}

	if len(all) != 3 || all[0].Path != "a.jpg" || all[2].Path != "c.jpg" {
		t.Fatalf("Unexpected outcomes %v", all)
	}

	if all[0].Result == nil || all[0].Result.Format != policy.FormatJPEG || all[0].GPS == nil || all[0].GPS.Latitude != 37.5 {
		t.Fatalf("Unexpected first outcome %+v", all[0])
	}

	failed, err := j.Outcomes(ctx, "run1", photo.StatusFailed)

	if err != nil {
		t.Fatalf("Failed to list failures, %v", err)
	}

	if len(failed) != 1 || failed[0].Path != "b.jpg" || failed[0].Result != nil {
		t.Fatalf("Unexpected failures %v", failed)
	}
}
