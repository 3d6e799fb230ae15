package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/sfomuseum/go-media-clone/policy"
	"github.com/whosonfirst/go-ioutil"
	"github.com/whosonfirst/go-writer/v3"
)

// Report summarizes a single run. Outcomes, and the failures derived from them, are
// ordered by path so that the report does not depend on the number of workers or the
// order in which they finished.
type Report struct {
	// A random identifier for the run.
	RunID string `json:"run_id"`
	// When the run started.
	Started time.Time `json:"started"`
	// When the run finished.
	Finished time.Time `json:"finished"`
	// The number of workers used.
	Workers int `json:"workers"`
	// Whether the run was cancelled before every photo was started.
	Cancelled bool `json:"cancelled"`
	// The number of photos in the run.
	Total int `json:"total"`
	// The number of photos handed to the executor (Succeeded + Failed).
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// The number of photos never started because the run was cancelled.
	Skipped int `json:"skipped"`
	// The number of photos written with a GPS position.
	GPSAdded int `json:"gps_added"`
	// The number of photos whose dimensions were changed.
	Resized int `json:"resized"`
	// The number of photos written in a different format, by target format.
	Converted map[policy.Format]int `json:"converted,omitempty"`
	// Every photo in the run.
	Outcomes []*photo.Outcome `json:"outcomes"`
	// The subset of Outcomes which failed.
	Failures []*photo.Outcome `json:"failures"`
}

func newReport(run_id string, workers int, started time.Time, finished time.Time, outcomes []*photo.Outcome) *Report {

	r := &Report{
		RunID:     run_id,
		Started:   started,
		Finished:  finished,
		Workers:   workers,
		Total:     len(outcomes),
		Converted: make(map[policy.Format]int),
		Failures:  make([]*photo.Outcome, 0),
	}

	sorted := make([]*photo.Outcome, len(outcomes))
	copy(sorted, outcomes)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	r.Outcomes = sorted

	for _, o := range sorted {

		switch o.Status {
		case photo.StatusOK:

			r.Attempted += 1
			r.Succeeded += 1

			if o.Result == nil {
				continue
			}

			if o.Result.GPSAdded {
				r.GPSAdded += 1
			}

			if o.Result.Resized {
				r.Resized += 1
			}

			if o.Result.Converted {
				r.Converted[o.Result.Format] += 1
			}

		case photo.StatusFailed:

			r.Attempted += 1
			r.Failed += 1
			r.Failures = append(r.Failures, o)

		default:
			r.Skipped += 1
		}
	}

	return r
}

// Paths returns the path of every photo in the run, in report order.
func (r *Report) Paths() []string {

	paths := make([]string, len(r.Outcomes))

	for i, o := range r.Outcomes {
		paths[i] = o.Path
	}

	return paths
}

// Summary returns a human-readable summary of the run, followed by one line per failure.
func (r *Report) Summary() string {

	var b strings.Builder

	fmt.Fprintf(&b, "Processed %d of %d photos in %v: %d ok, %d failed, %d skipped\n",
		r.Attempted, r.Total, r.Finished.Sub(r.Started).Round(time.Millisecond), r.Succeeded, r.Failed, r.Skipped)

	fmt.Fprintf(&b, "GPS added: %d, resized: %d", r.GPSAdded, r.Resized)

	formats := make([]string, 0, len(r.Converted))

	for f := range r.Converted {
		formats = append(formats, string(f))
	}

	sort.Strings(formats)

	for _, f := range formats {
		fmt.Fprintf(&b, ", converted to %s: %d", f, r.Converted[policy.Format(f)])
	}

	b.WriteString("\n")

	if r.Cancelled {
		b.WriteString("Run was cancelled\n")
	}

	for _, o := range r.Failures {
		fmt.Fprintf(&b, "FAILED %s: %s\n", o.Path, o.Error)
	}

	return b.String()
}

// PublishReport writes the JSON encoding of r to wr as key.
func PublishReport(ctx context.Context, wr writer.Writer, key string, r *Report) error {

	body, err := json.MarshalIndent(r, "", "  ")

	if err != nil {
		return fmt.Errorf("Failed to marshal report, %w", err)
	}

	report_readcloser, err := ioutil.NewReadSeekCloser(bytes.NewReader(body))

	if err != nil {
		return fmt.Errorf("Failed to create ReadSeekCloser for report, %w", err)
	}

	_, err = wr.Write(ctx, key, report_readcloser)

	if err != nil {
		return fmt.Errorf("Failed to write report to %s, %w", key, err)
	}

	return nil
}
