// Package track builds a single, time-ordered GPS track from one or more track-log sources
// (GPX or GeoJSON) and answers "where was the camera at time T?" queries against it.
package track

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// GeoPoint is a single timestamped position read from a track-log source.
type GeoPoint struct {
	// The instant the position was recorded.
	Time time.Time `json:"time"`
	// Decimal degrees.
	Latitude float64 `json:"latitude"`
	// Decimal degrees.
	Longitude float64 `json:"longitude"`
	// Metres above sea level, if the source recorded one.
	Altitude *float64 `json:"altitude,omitempty"`
}

// RawSource is the raw body of a track-log source along with the name it was read from.
// The name is only used to sniff the format and to label warnings.
type RawSource struct {
	Name string
	Body []byte
}

// Track is a merged, ascending-by-time sequence of GeoPoint values. A Track is read-only
// once Load returns and may be shared by any number of goroutines.
type Track struct {
	points   []GeoPoint
	dropped  int
	warnings *multierror.Error
}

type parseResult struct {
	points  []GeoPoint
	dropped int
	err     error
}

// Load parses each source independently and merges every successfully parsed point into
// a single Track. A source which fails to parse is recorded as a *SourceParseError in
// Track.Warnings() and otherwise ignored. If no points are parsed at all the Track is
// empty, which is not an error. The returned error is only ever ctx.Err().
func Load(ctx context.Context, sources ...*RawSource) (*Track, error) {

	results := make([]parseResult, len(sources))
	wg := new(sync.WaitGroup)

	for idx, src := range sources {

		wg.Add(1)

		go func(idx int, src *RawSource) {

			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			default:
				// pass
			}

			pts, dropped, err := parseSource(src)

			results[idx] = parseResult{
				points:  pts,
				dropped: dropped,
				err:     err,
			}

		}(idx, src)
	}

	wg.Wait()

	err := ctx.Err()

	if err != nil {
		return nil, err
	}

	t := &Track{}
	count := 0

	for _, r := range results {
		count += len(r.points)
	}

	merged := make([]GeoPoint, 0, count)

	for _, r := range results {

		t.dropped += r.dropped

		if r.err != nil {
			t.warnings = multierror.Append(t.warnings, r.err)
			continue
		}

		merged = append(merged, r.points...)
	}

	t.points = mergePoints(merged)
	return t, nil
}

// NewTrack returns a Track for points which have already been parsed, applying the same
// ordering and duplicate rules as Load.
func NewTrack(points ...GeoPoint) *Track {

	pts := make([]GeoPoint, len(points))
	copy(pts, points)

	return &Track{
		points: mergePoints(pts),
	}
}

// mergePoints sorts pts in place by time and removes any point whose timestamp is
// identical to one encountered before it.
func mergePoints(pts []GeoPoint) []GeoPoint {

	sort.SliceStable(pts, func(i, j int) bool {
		return pts[i].Time.Before(pts[j].Time)
	})

	out := pts[:0]

	for _, pt := range pts {

		if len(out) > 0 && out[len(out)-1].Time.Equal(pt.Time) {
			continue
		}

		out = append(out, pt)
	}

	return out
}

// Len returns the number of points in the track.
func (t *Track) Len() int {

	if t == nil {
		return 0
	}

	return len(t.points)
}

// Points returns a copy of the points in the track.
func (t *Track) Points() []GeoPoint {

	if t == nil {
		return nil
	}

	pts := make([]GeoPoint, len(t.points))
	copy(pts, t.points)
	return pts
}

// Span returns the times of the first and last points in the track. Both values are zero
// for an empty track.
func (t *Track) Span() (time.Time, time.Time) {

	if t.Len() == 0 {
		return time.Time{}, time.Time{}
	}

	return t.points[0].Time, t.points[len(t.points)-1].Time
}

// Dropped returns the number of points which were discarded because their coordinates
// were out of range.
func (t *Track) Dropped() int {

	if t == nil {
		return 0
	}

	return t.dropped
}

// Warnings returns the errors for every source that could not be parsed, or nil.
func (t *Track) Warnings() error {

	if t == nil {
		return nil
	}

	return t.warnings.ErrorOrNil()
}

// String implements fmt.Stringer
func (t *Track) String() string {

	if t.Len() == 0 {
		return "track (empty)"
	}

	start, end := t.Span()
	return fmt.Sprintf("track (%d points, %s - %s)", t.Len(), start.Format(time.RFC3339), end.Format(time.RFC3339))
}
