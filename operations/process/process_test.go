package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	natefinch "github.com/natefinch/atomic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/sfomuseum/go-media-clone/policy"
	"github.com/sfomuseum/go-media-clone/track"
	"github.com/tidwall/gjson"
	"github.com/whosonfirst/go-writer/v3"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testTable(t *testing.T) *policy.Table {

	rules := []*policy.Rule{
		{Name: "keep", Ratings: []policy.Rating{4, 5}, Bypass: true},
		{Name: "shrink", Ratings: []policy.Rating{0, 1, 2, 3}, Resize: policy.Resize{Mode: policy.ResizePercentage, Value: 50}, Quality: 80, Format: policy.FormatJPEG},
	}

	table, err := policy.Validate(rules, nil)

	if err != nil {
		t.Fatalf("Failed to validate policy table, %v", err)
	}

	return table
}

func testRecords(count int) []*photo.Record {

	records := make([]*photo.Record, count)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	// added in reverse order so that the report has to sort them
	for i := 0; i < count; i++ {
		records[count-1-i] = &photo.Record{
			Path:        fmt.Sprintf("DCIM/IMG_%04d.JPG", i),
			CaptureTime: base.Add(time.Duration(i) * time.Minute),
			Rating:      policy.Rating(i % 6),
			Size:        1024,
		}
	}

	return records
}

func TestProcessPhotosPartialFailure(t *testing.T) {

	ctx := context.Background()
	table := testTable(t)

	failing := map[string]bool{
		"DCIM/IMG_0001.JPG": true,
		"DCIM/IMG_0004.JPG": true,
		"DCIM/IMG_0008.JPG": true,
	}

	ex := photo.ExecutorFunc(func(ctx context.Context, plan *photo.Plan) (*photo.Result, error) {

		// make completion order differ from dispatch order
		time.Sleep(time.Duration(int(plan.Record.Rating)%3) * time.Millisecond)

		if failing[plan.Record.Path] {
			return nil, photo.NewTransformError(plan.Record.Path, photo.StageEncode, errors.New("boom"))
		}

		rsp := &photo.Result{
			OutputPath: plan.Record.Path,
			Format:     plan.Rule.Format,
			Converted:  !plan.Rule.Bypass,
			Resized:    plan.Rule.Resize.Mode != policy.ResizePreserve,
		}

		return rsp, nil
	})

	var expected_paths []string

	for _, r := range testRecords(10) {
		expected_paths = append(expected_paths, r.Path)
	}

	sort.Strings(expected_paths)

	for _, workers := range []int{1, 4, 8} {

		opts := &ProcessOptions{
			Executor: ex,
			Policy:   table,
			Workers:  workers,
			Logger:   testLogger,
		}

		report, err := ProcessPhotos(ctx, opts, testRecords(10)...)

		if err != nil {
			t.Fatalf("Failed to process photos with %d workers, %v", workers, err)
		}

		if report.Total != 10 || report.Attempted != 10 {
			t.Fatalf("Expected 10 attempted photos with %d workers, got %d/%d", workers, report.Attempted, report.Total)
		}

		if report.Succeeded != 7 || report.Failed != 3 || report.Skipped != 0 {
			t.Fatalf("Expected 7 ok and 3 failed with %d workers, got %d/%d/%d", workers, report.Succeeded, report.Failed, report.Skipped)
		}

		paths := report.Paths()

		if strings.Join(paths, ";") != strings.Join(expected_paths, ";") {
			t.Fatalf("Unexpected paths with %d workers: %v", workers, paths)
		}

		if len(report.Failures) != 3 {
			t.Fatalf("Expected 3 failures, got %d", len(report.Failures))
		}

		for _, o := range report.Failures {

			if !failing[o.Path] {
				t.Fatalf("Unexpected failure for %s", o.Path)
			}

			if !strings.Contains(o.Error, "boom") {
				t.Fatalf("Expected failure reason for %s, got '%s'", o.Path, o.Error)
			}
		}

		if report.Cancelled {
			t.Fatalf("Did not expect run to be cancelled")
		}

		// ratings 0-3 are converted; of those IMG_0001 and IMG_0008 fail
		if report.Converted[policy.FormatJPEG] != 6 || report.Resized != 6 {
			t.Fatalf("Unexpected conversion counts %v / %d", report.Converted, report.Resized)
		}
	}
}

func TestProcessPhotosCancelledBeforeStart(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64

	ex := photo.ExecutorFunc(func(ctx context.Context, plan *photo.Plan) (*photo.Result, error) {
		calls.Add(1)
		return &photo.Result{}, nil
	})

	opts := &ProcessOptions{
		Executor: ex,
		Policy:   testTable(t),
		Workers:  4,
		Logger:   testLogger,
	}

	report, err := ProcessPhotos(ctx, opts, testRecords(10)...)

	if err != nil {
		t.Fatalf("Failed to process photos, %v", err)
	}

	if report.Attempted != 0 || calls.Load() != 0 {
		t.Fatalf("Expected no attempted photos, got %d (%d calls)", report.Attempted, calls.Load())
	}

	if report.Skipped != 10 || len(report.Outcomes) != 10 {
		t.Fatalf("Expected 10 skipped photos, got %d", report.Skipped)
	}

	if !report.Cancelled {
		t.Fatalf("Expected report to be marked cancelled")
	}
}

func TestProcessPhotosCancelledMidRun(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	body := bytes.Repeat([]byte("0123456789abcdef"), 4096)

	var calls atomic.Int64

	ex := photo.ExecutorFunc(func(job_ctx context.Context, plan *photo.Plan) (*photo.Result, error) {

		if calls.Add(1) == 3 {
			cancel()
		}

		// in-flight work must not see the cancellation
		if job_ctx.Err() != nil {
			return nil, job_ctx.Err()
		}

		time.Sleep(5 * time.Millisecond)

		out := filepath.Join(root, filepath.Base(plan.Record.Path))
		err := natefinch.WriteFile(out, bytes.NewReader(body))

		if err != nil {
			return nil, err
		}

		return &photo.Result{OutputPath: out, Bytes: int64(len(body))}, nil
	})

	opts := &ProcessOptions{
		Executor: ex,
		Policy:   testTable(t),
		Workers:  2,
		Logger:   testLogger,
	}

	total := 20

	report, err := ProcessPhotos(ctx, opts, testRecords(total)...)

	if err != nil {
		t.Fatalf("Failed to process photos, %v", err)
	}

	if report.Attempted < 1 || report.Attempted >= total {
		t.Fatalf("Expected between 1 and %d attempted photos, got %d", total-1, report.Attempted)
	}

	if report.Failed != 0 {
		t.Fatalf("Expected in-flight photos to finish normally, got %d failures", report.Failed)
	}

	if report.Attempted+report.Skipped != total || len(report.Outcomes) != total {
		t.Fatalf("Expected every photo in the report")
	}

	for _, o := range report.Outcomes {

		out := filepath.Join(root, filepath.Base(o.Path))
		written, err := os.ReadFile(out)

		switch o.Status {
		case photo.StatusOK:

			if err != nil {
				t.Fatalf("Expected %s to be written, %v", out, err)
			}

			if !bytes.Equal(written, body) {
				t.Fatalf("Partial file %s (%d bytes)", out, len(written))
			}

		case photo.StatusSkipped:

			if !os.IsNotExist(err) {
				t.Fatalf("Expected no file for skipped photo %s", o.Path)
			}

		default:
			t.Fatalf("Unexpected status %s for %s", o.Status, o.Path)
		}
	}

	entries, err := os.ReadDir(root)

	if err != nil {
		t.Fatalf("Failed to read output directory, %v", err)
	}

	if len(entries) != report.Succeeded {
		t.Fatalf("Expected %d files on disk, got %d", report.Succeeded, len(entries))
	}
}

func TestProcessPhotosGeotag(t *testing.T) {

	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tr := track.NewTrack(
		track.GeoPoint{Time: base, Latitude: 37.0, Longitude: -122.0},
		track.GeoPoint{Time: base.Add(2 * time.Minute), Latitude: 38.0, Longitude: -121.0},
	)

	records := []*photo.Record{
		{Path: "a.jpg", CaptureTime: base.Add(time.Minute), Rating: 5},
		{Path: "b.jpg", CaptureTime: base.Add(24 * time.Hour), Rating: 5},
	}

	mu := new(sync.Mutex)
	fixes := make(map[string]*track.GeoFix)

	ex := photo.ExecutorFunc(func(ctx context.Context, plan *photo.Plan) (*photo.Result, error) {

		mu.Lock()
		fixes[plan.Record.Path] = plan.Fix
		mu.Unlock()

		return &photo.Result{GPSAdded: plan.Fix != nil}, nil
	})

	opts := &ProcessOptions{
		Executor: ex,
		Policy:   testTable(t),
		Track:    tr,
		Window:   track.DefaultWindow,
		Workers:  2,
		Logger:   testLogger,
	}

	report, err := ProcessPhotos(ctx, opts, records...)

	if err != nil {
		t.Fatalf("Failed to process photos, %v", err)
	}

	fix := fixes["a.jpg"]

	if fix == nil || fix.Latitude != 37.5 || fix.Longitude != -121.5 {
		t.Fatalf("Unexpected fix for a.jpg, %v", fix)
	}

	if fixes["b.jpg"] != nil {
		t.Fatalf("Did not expect a fix for b.jpg")
	}

	if report.GPSAdded != 1 || report.Outcomes[0].GPS == nil || report.Outcomes[1].GPS != nil {
		t.Fatalf("Unexpected GPS accounting in report")
	}

	opts.IgnoreGeotag = true

	_, err = ProcessPhotos(ctx, opts, records...)

	if err != nil {
		t.Fatalf("Failed to process photos, %v", err)
	}

	if fixes["a.jpg"] != nil {
		t.Fatalf("Expected no fix when geotagging is disabled")
	}
}

func TestProcessPhotosZeroWindow(t *testing.T) {

	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tr := track.NewTrack(
		track.GeoPoint{Time: base, Latitude: 37.0, Longitude: -122.0},
	)

	records := []*photo.Record{
		{Path: "exact.jpg", CaptureTime: base, Rating: 5},
		{Path: "later.jpg", CaptureTime: base.Add(3 * time.Minute), Rating: 5},
	}

	mu := new(sync.Mutex)
	fixes := make(map[string]*track.GeoFix)

	ex := photo.ExecutorFunc(func(ctx context.Context, plan *photo.Plan) (*photo.Result, error) {

		mu.Lock()
		fixes[plan.Record.Path] = plan.Fix
		mu.Unlock()

		return &photo.Result{GPSAdded: plan.Fix != nil}, nil
	})

	opts := &ProcessOptions{
		Executor: ex,
		Policy:   testTable(t),
		Track:    tr,
		Window:   0,
		Workers:  1,
		Logger:   testLogger,
	}

	report, err := ProcessPhotos(ctx, opts, records...)

	if err != nil {
		t.Fatalf("Failed to process photos, %v", err)
	}

	if fixes["exact.jpg"] == nil {
		t.Fatalf("Expected a fix for a photo taken at a track point")
	}

	if fixes["later.jpg"] != nil {
		t.Fatalf("Did not expect a fix outside a zero window, got %v", fixes["later.jpg"])
	}

	if report.GPSAdded != 1 {
		t.Fatalf("Expected 1 geotagged photo, got %d", report.GPSAdded)
	}
}

func TestProcessPhotosIsolatesPanicsAndBadRatings(t *testing.T) {

	ctx := context.Background()

	ex := photo.ExecutorFunc(func(ctx context.Context, plan *photo.Plan) (*photo.Result, error) {

		if plan.Record.Path == "panic.jpg" {
			panic("decoder exploded")
		}

		return &photo.Result{}, nil
	})

	records := []*photo.Record{
		{Path: "panic.jpg", Rating: 5},
		{Path: "rating.jpg", Rating: 9},
		{Path: "ok.jpg", Rating: 5},
		nil,
	}

	opts := &ProcessOptions{
		Executor: ex,
		Policy:   testTable(t),
		Workers:  3,
		Logger:   testLogger,
	}

	report, err := ProcessPhotos(ctx, opts, records...)

	if err != nil {
		t.Fatalf("Failed to process photos, %v", err)
	}

	if report.Total != 3 || report.Succeeded != 1 || report.Failed != 2 {
		t.Fatalf("Unexpected counts %d/%d/%d", report.Total, report.Succeeded, report.Failed)
	}

	if !strings.Contains(report.Failures[0].Error, "decoder exploded") {
		t.Fatalf("Expected panic reason, got '%s'", report.Failures[0].Error)
	}

	if !strings.Contains(report.Failures[1].Error, "out of range") {
		t.Fatalf("Expected rating reason, got '%s'", report.Failures[1].Error)
	}
}

func TestProcessPhotosInvalidOptions(t *testing.T) {

	ctx := context.Background()
	table := testTable(t)

	ex := photo.ExecutorFunc(func(ctx context.Context, plan *photo.Plan) (*photo.Result, error) {
		return &photo.Result{}, nil
	})

	tests := []*ProcessOptions{
		nil,
		{Policy: table, Workers: 1},
		{Executor: ex, Workers: 1},
		{Executor: ex, Policy: table, Workers: 0},
	}

	for i, opts := range tests {

		_, err := ProcessPhotos(ctx, opts, testRecords(1)...)

		if err == nil {
			t.Fatalf("Expected options %d to fail", i)
		}
	}
}

func TestProcessPhotosMetrics(t *testing.T) {

	ctx := context.Background()
	reg := prometheus.NewRegistry()

	ex := photo.ExecutorFunc(func(ctx context.Context, plan *photo.Plan) (*photo.Result, error) {

		if plan.Record.Rating == 0 {
			return nil, errors.New("nope")
		}

		return &photo.Result{}, nil
	})

	progress := NewProgress()

	opts := &ProcessOptions{
		Executor: ex,
		Policy:   testTable(t),
		Workers:  4,
		Logger:   testLogger,
		Metrics:  NewMetrics(reg),
		Progress: progress,
	}

	// ratings are i%6, so IMG_0000 and IMG_0006 fail
	_, err := ProcessPhotos(ctx, opts, testRecords(12)...)

	if err != nil {
		t.Fatalf("Failed to process photos, %v", err)
	}

	ok := testutil.ToFloat64(opts.Metrics.Jobs.WithLabelValues("ok"))
	failed := testutil.ToFloat64(opts.Metrics.Jobs.WithLabelValues("failed"))

	if ok != 10 || failed != 2 {
		t.Fatalf("Unexpected job metrics %v / %v", ok, failed)
	}

	if testutil.ToFloat64(opts.Metrics.InFlight) != 0 {
		t.Fatalf("Expected no jobs in flight")
	}

	s := progress.Snapshot()

	if s.Total != 12 || s.Attempted != 12 || s.Succeeded != 10 || s.Failed != 2 {
		t.Fatalf("Unexpected progress %+v", s)
	}
}

func TestPublishReport(t *testing.T) {

	ctx := context.Background()

	ex := photo.ExecutorFunc(func(ctx context.Context, plan *photo.Plan) (*photo.Result, error) {
		return nil, errors.New("nope")
	})

	opts := &ProcessOptions{
		Executor: ex,
		Policy:   testTable(t),
		Workers:  1,
		Logger:   testLogger,
	}

	report, err := ProcessPhotos(ctx, opts, testRecords(2)...)

	if err != nil {
		t.Fatalf("Failed to process photos, %v", err)
	}

	root := t.TempDir()

	wr, err := writer.NewWriter(ctx, "fs://"+root)

	if err != nil {
		t.Fatalf("Failed to create writer, %v", err)
	}

	err = PublishReport(ctx, wr, "report.json", report)

	if err != nil {
		t.Fatalf("Failed to publish report, %v", err)
	}

	body, err := os.ReadFile(filepath.Join(root, "report.json"))

	if err != nil {
		t.Fatalf("Failed to read report, %v", err)
	}

	if gjson.GetBytes(body, "failed").Int() != 2 {
		t.Fatalf("Unexpected report %s", body)
	}

	if gjson.GetBytes(body, "failures.0.path").String() != "DCIM/IMG_0000.JPG" {
		t.Fatalf("Expected failures sorted by path, got %s", gjson.GetBytes(body, "failures.#.path").Raw)
	}

	if !strings.Contains(report.Summary(), "FAILED DCIM/IMG_0001.JPG: nope") {
		t.Fatalf("Unexpected summary %s", report.Summary())
	}
}
