// Package gather discovers photos in a gocloud.dev/blob bucket and reads the capture time
// and rating needed to process them.
package gather

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sfomuseum/go-media-clone/common"
	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/sfomuseum/go-media-clone/policy"
	"gocloud.dev/blob"
)

// headerSize is the number of bytes read from the start of each photo when looking for
// EXIF and XMP metadata.
const headerSize = 512 * 1024

// RAW formats which mime.TypeByExtension does not know about.
var raw_extensions = map[string]string{
	".dng": "image/x-adobe-dng",
	".raf": "image/x-fuji-raf",
	".arw": "image/x-sony-arw",
	".nef": "image/x-nikon-nef",
	".nrw": "image/x-nikon-nrw",
	".cr2": "image/x-canon-cr2",
	".cr3": "image/x-canon-cr3",
	".srf": "image/x-sony-srf",
	".heic": "image/heic",
	".heif": "image/heif",
}

// RatingReader reads the rating for a photo from somewhere other than its embedded XMP
// packet, for example by asking exiftool.
type RatingReader interface {
	ReadRating(ctx context.Context, key string) (int, bool, error)
}

// GatherOptions controls how photos are discovered.
type GatherOptions struct {
	// The time zone capture times recorded by the camera are in. If nil, time.Local is used.
	Location *time.Location
	// An optional RatingReader consulted before the embedded XMP packet.
	Ratings RatingReader
	// Compute a SHA-1 fingerprint for every photo.
	Fingerprint bool
	// The number of photos read concurrently. Defaults to 4.
	Workers int
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Failure is a photo which was found but could not be read.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// DiscoveryError is returned when the bucket being gathered can not be listed.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("Failed to list photos, %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// IsPhoto reports whether path has the extension of an image file, returning its mimetype.
// Hidden files, including the temporary files written while cloning, are never photos.
func IsPhoto(path string) (string, bool) {

	if strings.HasPrefix(filepath.Base(path), ".") {
		return "", false
	}

	ext := strings.ToLower(filepath.Ext(path))

	t, ok := raw_extensions[ext]

	if ok {
		return t, true
	}

	t = mime.TypeByExtension(ext)

	if !strings.HasPrefix(t, "image/") {
		return "", false
	}

	return t, true
}

// GatherPhotos returns a Record for every photo in bucket, ordered by path. Photos which
// could not be read are returned as Failures. An error is only returned if the bucket
// itself could not be listed.
func GatherPhotos(ctx context.Context, bucket *blob.Bucket, opts *GatherOptions) ([]*photo.Record, []*Failure, error) {

	if opts == nil {
		opts = &GatherOptions{}
	}

	logger := opts.Logger

	if logger == nil {
		logger = slog.Default()
	}

	workers := opts.Workers

	if workers < 1 {
		workers = 4
	}

	objects := make([]*blob.ListObject, 0)
	failures := make([]*Failure, 0)

	cb := func(obj *blob.ListObject) {
		objects = append(objects, obj)
	}

	err := CrawlPhotos(ctx, bucket, cb)

	if err != nil {
		return nil, nil, &DiscoveryError{Err: err}
	}

	logger.Debug("Found photos", "count", len(objects))

	records := make([]*photo.Record, len(objects))
	errs := make([]error, len(objects))

	sem := make(chan struct{}, workers)
	wg := new(sync.WaitGroup)

	for idx, obj := range objects {

		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, obj *blob.ListObject) {

			defer func() {
				<-sem
				wg.Done()
			}()

			rec, err := GatherPhoto(ctx, bucket, obj, opts)

			if err != nil {
				errs[idx] = err
				return
			}

			records[idx] = rec

		}(idx, obj)
	}

	wg.Wait()

	err = ctx.Err()

	if err != nil {
		return nil, nil, err
	}

	gathered := make([]*photo.Record, 0, len(records))

	for idx, rec := range records {

		if errs[idx] != nil {

			logger.Warn("Failed to gather photo", "path", objects[idx].Key, "error", errs[idx])

			failures = append(failures, &Failure{
				Path:  objects[idx].Key,
				Error: errs[idx].Error(),
			})

			continue
		}

		gathered = append(gathered, rec)
	}

	sort.Slice(gathered, func(i, j int) bool {
		return gathered[i].Path < gathered[j].Path
	})

	return gathered, failures, nil
}

// CrawlPhotos iterates through all the items stored in a blob.Bucket instance and invokes
// cb for each one that looks like a photo.
func CrawlPhotos(ctx context.Context, bucket *blob.Bucket, cb func(*blob.ListObject)) error {

	var list func(context.Context, *blob.Bucket, string) error

	list = func(ctx context.Context, b *blob.Bucket, prefix string) error {

		iter := b.List(&blob.ListOptions{
			Delimiter: "/",
			Prefix:    prefix,
		})

		for {

			select {
			case <-ctx.Done():
				return nil
			default:
				// pass
			}

			obj, err := iter.Next(ctx)

			if err == io.EOF {
				break
			}

			if err != nil {
				return fmt.Errorf("Failed to list '%s', %w", prefix, err)
			}

			if obj.IsDir {

				err := list(ctx, b, obj.Key)

				if err != nil {
					return err
				}

				continue
			}

			_, ok := IsPhoto(obj.Key)

			if !ok {
				continue
			}

			cb(obj)
		}

		return nil
	}

	return list(ctx, bucket, "")
}

// GatherPhoto returns the Record for a single object.
func GatherPhoto(ctx context.Context, bucket *blob.Bucket, obj *blob.ListObject, opts *GatherOptions) (*photo.Record, error) {

	path := obj.Key
	t, _ := IsPhoto(path)

	r, err := bucket.NewReader(ctx, path, nil)

	if err != nil {
		return nil, fmt.Errorf("Failed to open %s for reading, %w", path, err)
	}

	defer r.Close()

	head, err := io.ReadAll(io.LimitReader(r, headerSize))

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", path, err)
	}

	loc := opts.Location

	if loc == nil {
		loc = time.Local
	}

	rec := &photo.Record{
		Path:     path,
		Size:     obj.Size,
		MimeType: t,
		Rating:   policy.DefaultRating,
	}

	capture_time, err := CaptureTime(head, loc)

	if err != nil {
		rec.CaptureTime = obj.ModTime
	} else {
		rec.CaptureTime = capture_time
	}

	rating, ok, err := readRating(ctx, path, head, opts.Ratings)

	if err != nil {
		return nil, err
	}

	if ok {
		rec.Rating = rating
	}

	if opts.Fingerprint {

		fp, err := common.FingerprintFile(ctx, bucket, path)

		if err != nil {
			return nil, err
		}

		rec.Fingerprint = fp
	}

	return rec, nil
}

const exifTimeLayout = "2006:01:02 15:04:05"

// CaptureTime returns the EXIF DateTimeOriginal (or DateTime) recorded in body, which the
// camera writes without a time zone, interpreted in loc.
func CaptureTime(body []byte, loc *time.Location) (time.Time, error) {

	x, err := exif.Decode(bytes.NewReader(body))

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to decode EXIF data, %w", err)
	}

	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {

		tag, err := x.Get(name)

		if err != nil {
			continue
		}

		str, err := tag.StringVal()

		if err != nil {
			continue
		}

		t, err := time.ParseInLocation(exifTimeLayout, strings.TrimSpace(strings.TrimRight(str, "\x00")), loc)

		if err != nil {
			continue
		}

		return t, nil
	}

	return time.Time{}, errors.New("No capture time")
}

func readRating(ctx context.Context, path string, head []byte, rr RatingReader) (policy.Rating, bool, error) {

	if rr != nil {

		v, ok, err := rr.ReadRating(ctx, path)

		if err != nil {
			return 0, false, fmt.Errorf("Failed to read rating for %s, %w", path, err)
		}

		if ok {
			return clampRating(v), true, nil
		}
	}

	v, ok := XMPRating(head)

	if !ok {
		return 0, false, nil
	}

	return clampRating(v), true, nil
}

// Lightroom records rejected photos as -1.
func clampRating(v int) policy.Rating {

	r := policy.Rating(v)

	if r < policy.MinRating {
		return policy.MinRating
	}

	if r > policy.MaxRating {
		return policy.MaxRating
	}

	return r
}
