package sources

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sfomuseum/go-media-clone/track"
)

// MinioSource reads track-log files from an S3-compatible server using minio-go.
type MinioSource struct {
	Source
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioSource returns a MinioSource for a URI of the form
// minio://endpoint/bucket/prefix?secure=true. Credentials are read from the
// MINIO_ACCESS_KEY and MINIO_SECRET_KEY environment variables.
func NewMinioSource(ctx context.Context, uri string) (Source, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse URI, %w", err)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("Missing endpoint in '%s'", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)

	if parts[0] == "" {
		return nil, fmt.Errorf("Missing bucket in '%s'", uri)
	}

	prefix := ""

	if len(parts) == 2 {
		prefix = parts[1]
	}

	secure := u.Query().Get("secure") == "true"

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
		Secure: secure,
	})

	if err != nil {
		return nil, fmt.Errorf("Failed to create minio client, %w", err)
	}

	s := &MinioSource{
		client: client,
		bucket: parts[0],
		prefix: prefix,
	}

	return s, nil
}

// Fetch implements Source
func (s *MinioSource) Fetch(ctx context.Context) ([]*track.RawSource, error) {

	keys := make([]string, 0)

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	})

	for obj := range objects {

		if obj.Err != nil {
			return nil, fmt.Errorf("Failed to list %s/%s, %w", s.bucket, s.prefix, obj.Err)
		}

		if IsTrackLog(obj.Key) {
			keys = append(keys, obj.Key)
		}
	}

	raw := make([]*track.RawSource, 0, len(keys))

	for _, key := range keys {

		var body []byte

		get_func := func() error {

			obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})

			if err != nil {
				return err
			}

			defer obj.Close()

			b, err := io.ReadAll(obj)

			if err != nil {

				rsp := minio.ToErrorResponse(err)

				if rsp.Code == "NoSuchKey" || rsp.Code == "AccessDenied" {
					return backoff.Permanent(err)
				}

				return err
			}

			body = b
			return nil
		}

		err := retry(ctx, get_func)

		if err != nil {
			return nil, fmt.Errorf("Failed to read %s/%s, %w", s.bucket, key, err)
		}

		raw = append(raw, &track.RawSource{
			Name: key,
			Body: body,
		})
	}

	sortRaw(raw)
	return raw, nil
}

// Close implements Source
func (s *MinioSource) Close() error {
	return nil
}
