package sources

import (
	"context"
	"fmt"
	"io"

	"github.com/sfomuseum/go-media-clone/track"
	"gocloud.dev/blob"
)

// BlobSource reads track-log files from a gocloud.dev/blob bucket.
type BlobSource struct {
	Source
	bucket *blob.Bucket
	prefix string
	owned  bool
}

// NewBlobSource opens the bucket for uri.
func NewBlobSource(ctx context.Context, uri string) (Source, error) {

	bucket, err := blob.OpenBucket(ctx, uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to open bucket for '%s', %w", uri, err)
	}

	s := &BlobSource{
		bucket: bucket,
		owned:  true,
	}

	return s, nil
}

// NewBlobSourceWithBucket returns a BlobSource reading keys under prefix in bucket. The
// bucket is not closed by Close.
func NewBlobSourceWithBucket(ctx context.Context, bucket *blob.Bucket, prefix string) (Source, error) {

	s := &BlobSource{
		bucket: bucket,
		prefix: prefix,
	}

	return s, nil
}

// Fetch implements Source
func (s *BlobSource) Fetch(ctx context.Context) ([]*track.RawSource, error) {

	raw := make([]*track.RawSource, 0)

	iter := s.bucket.List(&blob.ListOptions{
		Prefix: s.prefix,
	})

	for {
		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("Failed to list track sources, %w", err)
		}

		if obj.IsDir || !IsTrackLog(obj.Key) {
			continue
		}

		body, err := s.bucket.ReadAll(ctx, obj.Key)

		if err != nil {
			return nil, fmt.Errorf("Failed to read %s, %w", obj.Key, err)
		}

		raw = append(raw, &track.RawSource{
			Name: obj.Key,
			Body: body,
		})
	}

	sortRaw(raw)
	return raw, nil
}

// Close implements Source
func (s *BlobSource) Close() error {

	if !s.owned {
		return nil
	}

	return s.bucket.Close()
}
