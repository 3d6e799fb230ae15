// Package remove deletes the temporary files an interrupted run may leave in a destination.
package remove

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sfomuseum/go-media-clone/common"
	"gocloud.dev/blob"
)

// DefaultMinAge is the age below which a temporary file is assumed to belong to a run
// still in progress.
const DefaultMinAge = time.Hour

// Removal deletes stale temporary files from a bucket.
type Removal struct {
	Bucket *blob.Bucket
	// Temporary files modified more recently than this are left alone.
	MinAge time.Duration
	Dryrun bool
	Logger *slog.Logger
}

// NewRemoval returns a new Removal for bucket.
func NewRemoval(bucket *blob.Bucket) (*Removal, error) {

	if bucket == nil {
		return nil, fmt.Errorf("Missing bucket")
	}

	r := &Removal{
		Bucket: bucket,
		MinAge: DefaultMinAge,
		Dryrun: false,
		Logger: slog.Default(),
	}

	return r, nil
}

// IsTemporary reports whether key names a temporary file written by a clone.
func IsTemporary(key string) bool {
	return strings.HasPrefix(path.Base(key), common.TempPrefix)
}

// Remove deletes every stale temporary file in the bucket and returns the keys which were
// (or, in dry run mode, would have been) removed.
func (r *Removal) Remove(ctx context.Context) ([]string, error) {

	logger := r.Logger

	if logger == nil {
		logger = slog.Default()
	}

	cutoff := time.Now().Add(-r.MinAge)

	stale := make([]string, 0)

	err := r.list(ctx, "", func(obj *blob.ListObject) {

		if !IsTemporary(obj.Key) {
			return
		}

		if obj.ModTime.After(cutoff) {
			logger.Debug("Temporary file is too recent to remove", "key", obj.Key)
			return
		}

		stale = append(stale, obj.Key)
	})

	if err != nil {
		return nil, fmt.Errorf("Failed to list temporary files, %w", err)
	}

	removed_ch := make(chan string)
	err_ch := make(chan error)
	done_ch := make(chan bool)

	for _, key := range stale {

		go func(key string) {

			defer func() {
				done_ch <- true
			}()

			select {
			case <-ctx.Done():
				err_ch <- ctx.Err()
				return
			default:
				// pass
			}

			if r.Dryrun {
				logger.Info("[dryrun] delete here", "key", key)
			} else {

				err := r.Bucket.Delete(ctx, key)

				if err != nil {
					err_ch <- fmt.Errorf("Failed to remove %s, %w", key, err)
					return
				}
			}

			removed_ch <- key
		}(key)
	}

	removed := make([]string, 0)
	var result error

	for remaining := len(stale); remaining > 0; {

		select {
		case <-done_ch:
			remaining -= 1
		case key := <-removed_ch:
			logger.Debug("Removed temporary file", "key", key)
			removed = append(removed, key)
		case err := <-err_ch:
			result = multierror.Append(result, err)
		}
	}

	return removed, result
}

func (r *Removal) list(ctx context.Context, prefix string, cb func(*blob.ListObject)) error {

	iter := r.Bucket.List(&blob.ListOptions{
		Prefix:    prefix,
		Delimiter: "/",
	})

	for {

		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return err
		}

		if obj.IsDir {

			err := r.list(ctx, obj.Key, cb)

			if err != nil {
				return err
			}

			continue
		}

		cb(obj)
	}

	return nil
}
