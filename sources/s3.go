package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cenkalti/backoff/v4"
	"github.com/sfomuseum/go-media-clone/track"
)

// S3Source reads track-log files from an S3 bucket using the AWS SDK. Credentials are
// resolved by the SDK's default chain.
type S3Source struct {
	Source
	client     *s3.S3
	downloader *s3manager.Downloader
	bucket     string
	prefix     string
}

// NewS3Source returns an S3Source for a URI of the form s3://bucket/prefix?region=REGION.
func NewS3Source(ctx context.Context, uri string) (Source, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse URI, %w", err)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("Missing bucket in '%s'", uri)
	}

	cfg := aws.NewConfig()

	region := u.Query().Get("region")

	if region != "" {
		cfg = cfg.WithRegion(region)
	}

	sess, err := session.NewSession(cfg)

	if err != nil {
		return nil, fmt.Errorf("Failed to create AWS session, %w", err)
	}

	s := &S3Source{
		client:     s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		bucket:     u.Host,
		prefix:     strings.TrimPrefix(u.Path, "/"),
	}

	return s, nil
}

// Fetch implements Source
func (s *S3Source) Fetch(ctx context.Context) ([]*track.RawSource, error) {

	keys := make([]string, 0)

	list_input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}

	list_func := func() error {

		keys = keys[:0]

		err := s.client.ListObjectsV2PagesWithContext(ctx, list_input, func(page *s3.ListObjectsV2Output, last bool) bool {

			for _, obj := range page.Contents {

				key := aws.StringValue(obj.Key)

				if IsTrackLog(key) {
					keys = append(keys, key)
				}
			}

			return true
		})

		return permanentS3Error(err)
	}

	err := retry(ctx, list_func)

	if err != nil {
		return nil, fmt.Errorf("Failed to list s3://%s/%s, %w", s.bucket, s.prefix, err)
	}

	raw := make([]*track.RawSource, 0, len(keys))

	for _, key := range keys {

		var body []byte

		get_func := func() error {

			buf := aws.NewWriteAtBuffer([]byte{})

			_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})

			if err != nil {
				return permanentS3Error(err)
			}

			body = buf.Bytes()
			return nil
		}

		err := retry(ctx, get_func)

		if err != nil {
			return nil, fmt.Errorf("Failed to download s3://%s/%s, %w", s.bucket, key, err)
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
func (s *S3Source) Close() error {
	return nil
}

// permanentS3Error marks errors that retrying will not fix.
func permanentS3Error(err error) error {

	if err == nil {
		return nil
	}

	aws_err, ok := err.(awserr.Error)

	if !ok {
		return err
	}

	switch aws_err.Code() {
	case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "AccessDenied":
		return backoff.Permanent(err)
	default:
		return err
	}
}
