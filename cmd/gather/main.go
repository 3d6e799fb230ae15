// gather lists the photos in one or more gocloud.dev/blob URIs and prints each, with its
// capture time and rating, as a line of JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sfomuseum/go-media-clone/operations/gather"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

func main() {

	var timezone string
	var fingerprint bool
	var workers int

	flag.StringVar(&timezone, "timezone", "", "The time zone EXIF capture times are recorded in. Defaults to the local time zone.")
	flag.BoolVar(&fingerprint, "fingerprint", false, "Include a SHA-1 fingerprint for each photo.")
	flag.IntVar(&workers, "workers", 4, "The number of photos to read concurrently.")

	flag.Parse()

	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	loc := time.Local

	if timezone != "" {

		l, err := time.LoadLocation(timezone)

		if err != nil {
			logger.Error("Invalid time zone", "timezone", timezone, "error", err)
			os.Exit(1)
		}

		loc = l
	}

	opts := &gather.GatherOptions{
		Location:    loc,
		Fingerprint: fingerprint,
		Workers:     workers,
		Logger:      logger,
	}

	enc := json.NewEncoder(os.Stdout)

	for _, uri := range flag.Args() {

		logger.Info("Gather photos", "uri", uri)

		bucket, err := blob.OpenBucket(ctx, uri)

		if err != nil {
			logger.Error("Failed to open bucket", "uri", uri, "error", err)
			os.Exit(1)
		}

		records, failures, err := gather.GatherPhotos(ctx, bucket, opts)

		bucket.Close()

		if err != nil {
			logger.Error("Failed to gather photos", "uri", uri, "error", err)
			os.Exit(1)
		}

		for _, rec := range records {

			err := enc.Encode(rec)

			if err != nil {
				logger.Error("Failed to encode record", "path", rec.Path, "error", err)
				os.Exit(1)
			}
		}

		for _, f := range failures {
			fmt.Fprintf(os.Stderr, "%s: %s\n", f.Path, f.Error)
		}
	}
}
