// Package sources reads the raw bodies of track-log files from local or remote storage.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/sfomuseum/go-media-clone/track"
)

// How long a remote read is retried for before giving up.
const defaultRetryElapsed = 30 * time.Second

// Source is a location containing one or more track-log files.
type Source interface {
	// Fetch returns the body of every track-log file in the source.
	Fetch(context.Context) ([]*track.RawSource, error)
	// Close releases any resources held by the source.
	Close() error
}

// Track-log extensions read from a source. Everything else is ignored.
var track_extensions = map[string]bool{
	".gpx":     true,
	".geojson": true,
	".json":    true,
}

// IsTrackLog reports whether key looks like a track-log file.
func IsTrackLog(key string) bool {

	base := path.Base(key)

	if strings.HasPrefix(base, ".") {
		return false
	}

	return track_extensions[strings.ToLower(path.Ext(base))]
}

// NewSource returns a Source for uri. Supported schemes are s3:// (read with the AWS SDK),
// minio:// and anything gocloud.dev/blob can open, typically file:// and mem://.
func NewSource(ctx context.Context, uri string) (Source, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse source URI '%s', %w", uri, err)
	}

	switch u.Scheme {
	case "s3":
		return NewS3Source(ctx, uri)
	case "minio":
		return NewMinioSource(ctx, uri)
	default:
		return NewBlobSource(ctx, uri)
	}
}

// FetchAll fetches every source concurrently and returns the combined track-log bodies in
// source order. A source which fails is logged and skipped; its error is included in the
// second return value so callers may decide whether that is fatal.
func FetchAll(ctx context.Context, logger *slog.Logger, srcs ...Source) ([]*track.RawSource, error) {

	if logger == nil {
		logger = slog.Default()
	}

	results := make([][]*track.RawSource, len(srcs))
	errs := make([]error, len(srcs))

	wg := new(sync.WaitGroup)

	for idx, src := range srcs {

		wg.Add(1)

		go func(idx int, src Source) {

			defer wg.Done()

			raw, err := src.Fetch(ctx)

			if err != nil {
				logger.Warn("Failed to fetch track source, skipping", "source", fmt.Sprintf("%T", src), "error", err)
				errs[idx] = err
				return
			}

			results[idx] = raw

		}(idx, src)
	}

	wg.Wait()

	all := make([]*track.RawSource, 0)
	var result error

	for idx, raw := range results {

		if errs[idx] != nil {
			result = multierror.Append(result, errs[idx])
			continue
		}

		all = append(all, raw...)
	}

	return all, result
}

// sortRaw orders raw by name so that merging is deterministic for a given listing.
func sortRaw(raw []*track.RawSource) {

	sort.SliceStable(raw, func(i, j int) bool {
		return raw[i].Name < raw[j].Name
	})
}

// retry calls op with an exponential backoff until it succeeds, returns a
// backoff.Permanent error or ctx is done.
func retry(ctx context.Context, op func() error) error {

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = defaultRetryElapsed

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
