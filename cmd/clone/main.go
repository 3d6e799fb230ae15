// clone copies photos from a source location to a local library, resizing and converting
// each according to its star rating and tagging it with the GPS position recorded in one
// or more track logs at the time it was taken.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sfomuseum/go-media-clone/common"
	"github.com/sfomuseum/go-media-clone/config"
	"github.com/sfomuseum/go-media-clone/journal"
	"github.com/sfomuseum/go-media-clone/media"
	"github.com/sfomuseum/go-media-clone/operations/clone"
	"github.com/sfomuseum/go-media-clone/operations/gather"
	"github.com/sfomuseum/go-media-clone/operations/process"
	"github.com/sfomuseum/go-media-clone/operations/remove"
	"github.com/sfomuseum/go-media-clone/sources"
	"github.com/sfomuseum/go-media-clone/track"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

func main() {

	var config_path string
	var from string
	var to string
	var workers int
	var ignore_geotag bool
	var dryrun bool
	var force bool
	var init_config bool
	var clean bool
	var report_uri string
	var journal_path string
	var metrics_address string
	var hash_images bool
	var verbose bool

	flag.StringVar(&config_path, "config", "", "The path to the configuration file. Defaults to media-clone/config.yaml in the user's config directory.")
	flag.StringVar(&from, "from", "", "Override the configured import.from location.")
	flag.StringVar(&to, "to", "", "Override the configured import.to directory.")
	flag.IntVar(&workers, "workers", 0, "The number of photos to process concurrently. Overrides the configured value.")
	flag.BoolVar(&ignore_geotag, "ignore-geotag", false, "Do not add GPS positions to cloned photos.")
	flag.BoolVar(&dryrun, "dry-run", false, "Go through the motions but do not write any photos.")
	flag.BoolVar(&force, "force", false, "Overwrite photos (or, with -init, a configuration file) which already exist.")
	flag.BoolVar(&init_config, "init", false, "Write the default configuration file and exit.")
	flag.BoolVar(&clean, "clean", false, "Remove temporary files left in the destination by an interrupted run and exit.")
	flag.StringVar(&report_uri, "report", "", "An optional whosonfirst/go-writer URI to publish the run report and a GeoJSON FeatureCollection of geotagged photos to. Overrides the configured value.")
	flag.StringVar(&journal_path, "journal", "", "An optional path to a SQLite database to record the run in. Overrides the configured value.")
	flag.StringVar(&metrics_address, "metrics-address", "", "If set, serve Prometheus metrics on this address (for example localhost:9090) while the run is in progress.")
	flag.BoolVar(&hash_images, "hash-images", false, "Record perceptual image hashes for re-encoded photos.")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose (debug) logging.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Clone photos according to the policies defined in a configuration file.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n\t %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	level := slog.LevelInfo

	if verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &runOptions{
		ConfigPath:     config_path,
		From:           from,
		To:             to,
		Workers:        workers,
		IgnoreGeotag:   ignore_geotag,
		DryRun:         dryrun,
		Force:          force,
		Init:           init_config,
		Clean:          clean,
		ReportURI:      report_uri,
		JournalPath:    journal_path,
		MetricsAddress: metrics_address,
		HashImages:     hash_images,
		Logger:         logger,
	}

	err := run(ctx, opts)

	if err != nil {
		logger.Error("Failed to clone photos", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	ConfigPath     string
	From           string
	To             string
	Workers        int
	IgnoreGeotag   bool
	DryRun         bool
	Force          bool
	Init           bool
	Clean          bool
	ReportURI      string
	JournalPath    string
	MetricsAddress string
	HashImages     bool
	Logger         *slog.Logger
}

var errFailures = errors.New("One or more photos failed to clone")

func run(ctx context.Context, opts *runOptions) error {

	logger := opts.Logger

	config_path := opts.ConfigPath

	if config_path == "" {

		p, err := config.DefaultPath()

		if err != nil {
			return err
		}

		config_path = p
	}

	if opts.Init {

		err := config.WriteDefault(config_path, opts.Force)

		if err != nil {
			return err
		}

		fmt.Printf("Wrote default configuration to %s, edit import.from and import.to before running\n", config_path)
		return nil
	}

	cfg, err := config.Load(ctx, config_path)

	if err != nil {
		return err
	}

	if opts.From != "" {
		cfg.Import.From = opts.From
	}

	if opts.To != "" {
		cfg.Import.To = opts.To
	}

	from, to, err := cfg.ImportPaths()

	if err != nil {
		return err
	}

	if opts.Clean {
		return cleanDestination(ctx, to, opts.DryRun, logger)
	}

	source_uri, err := bucketURI(from)

	if err != nil {
		return err
	}

	source_bucket, err := blob.OpenBucket(ctx, source_uri)

	if err != nil {
		return fmt.Errorf("Failed to open source %s, %w", source_uri, err)
	}

	defer source_bucket.Close()

	workers := cfg.Workers

	if opts.Workers > 0 {
		workers = opts.Workers
	}

	if workers < 1 {
		workers = 4
	}

	// exiftool is optional; without it ratings come from embedded XMP only and
	// re-encoded photos lose their metadata
	et, err := common.NewExiftool()

	if err != nil {
		logger.Warn("exiftool is not available, metadata will not be copied or written", "error", err)
		et = nil
	} else {
		defer et.Close()
	}

	gather_opts := &gather.GatherOptions{
		Location:    cfg.Location(),
		Fingerprint: true,
		Workers:     workers,
		Logger:      logger,
	}

	if et != nil && strings.HasPrefix(source_uri, "file://") {
		gather_opts.Ratings = &gather.ExiftoolRatings{
			Root:     strings.TrimPrefix(source_uri, "file://"),
			Exiftool: et,
		}
	}

	records, failures, err := gather.GatherPhotos(ctx, source_bucket, gather_opts)

	if err != nil {
		return err
	}

	for _, f := range failures {
		logger.Warn("Failed to read photo, skipping", "path", f.Path, "error", f.Error)
	}

	logger.Info("Gathered photos", "count", len(records), "failures", len(failures))

	ignore_geotag := opts.IgnoreGeotag || cfg.Geotag.Ignore

	var tr *track.Track

	if !ignore_geotag {

		tr, err = loadTrack(ctx, cfg.Geotag.Sources, logger)

		if err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	metrics := process.NewMetrics(reg)

	if opts.MetricsAddress != "" {
		go serveMetrics(opts.MetricsAddress, reg, logger)
	}

	cloner_opts := &clone.ClonerOptions{
		Source:      source_bucket,
		Destination: to,
		Force:       opts.Force,
		DryRun:      opts.DryRun,
		HashImages:  opts.HashImages,
		Logger:      logger,
	}

	if et != nil {
		cloner_opts.Metadata = &clone.ExiftoolMetadata{
			Exiftool: et,
		}
	}

	cloner, err := clone.NewCloner(cloner_opts)

	if err != nil {
		return err
	}

	process_opts := &process.ProcessOptions{
		Executor:         cloner,
		Policy:           cfg.Policy(),
		Track:            tr,
		Window:           cfg.Window(),
		Workers:          workers,
		IgnoreGeotag:     ignore_geotag,
		Logger:           logger,
		Metrics:          metrics,
		Progress:         process.NewProgress(),
		ProgressInterval: 10 * time.Second,
	}

	report, err := process.ProcessPhotos(ctx, process_opts, records...)

	if err != nil {
		return err
	}

	fmt.Println(report.Summary())

	// the run itself may have been cancelled but the report should still be recorded
	publish_ctx := context.WithoutCancel(ctx)

	report_uri := cfg.Reports

	if opts.ReportURI != "" {
		report_uri = opts.ReportURI
	}

	if report_uri != "" {

		err := publishReport(publish_ctx, report_uri, report)

		if err != nil {
			logger.Error("Failed to publish report", "error", err)
		}
	}

	journal_path := cfg.Journal

	if opts.JournalPath != "" {
		journal_path = opts.JournalPath
	}

	if journal_path != "" {

		err := recordReport(publish_ctx, journal_path, report)

		if err != nil {
			logger.Error("Failed to record run in journal", "error", err)
		}
	}

	if report.Failed > 0 {
		return errFailures
	}

	if report.Cancelled {
		return process.ErrCancelled
	}

	return nil
}

// bucketURI returns a gocloud.dev/blob URI for path, which may already be a URI.
func bucketURI(path string) (string, error) {

	if strings.Contains(path, "://") {
		return path, nil
	}

	abs_path, err := filepath.Abs(path)

	if err != nil {
		return "", fmt.Errorf("Failed to derive absolute path for %s, %w", path, err)
	}

	return "file://" + abs_path, nil
}

func loadTrack(ctx context.Context, uris []string, logger *slog.Logger) (*track.Track, error) {

	srcs := make([]sources.Source, 0, len(uris))

	for _, uri := range uris {

		src, err := sources.NewSource(ctx, uri)

		if err != nil {
			logger.Warn("Failed to open track source, skipping", "uri", uri, "error", err)
			continue
		}

		defer src.Close()
		srcs = append(srcs, src)
	}

	raw, err := sources.FetchAll(ctx, logger, srcs...)

	if err != nil {
		logger.Warn("One or more track sources could not be fetched", "error", err)
	}

	tr, err := track.Load(ctx, raw...)

	if err != nil {
		return nil, fmt.Errorf("Failed to load track, %w", err)
	}

	err = tr.Warnings()

	if err != nil {
		logger.Warn("Failed to parse one or more track sources", "error", err)
	}

	logger.Info("Loaded track", "track", tr.String())
	return tr, nil
}

func cleanDestination(ctx context.Context, to string, dryrun bool, logger *slog.Logger) error {

	dest_uri, err := bucketURI(to)

	if err != nil {
		return err
	}

	bucket, err := blob.OpenBucket(ctx, dest_uri)

	if err != nil {
		return fmt.Errorf("Failed to open destination %s, %w", dest_uri, err)
	}

	defer bucket.Close()

	r, err := remove.NewRemoval(bucket)

	if err != nil {
		return err
	}

	r.Dryrun = dryrun
	r.Logger = logger

	removed, err := r.Remove(ctx)

	for _, key := range removed {
		fmt.Println(key)
	}

	return err
}

func publishReport(ctx context.Context, uri string, report *process.Report) error {

	wr, err := common.NewWriter(ctx, uri)

	if err != nil {
		return err
	}

	err = process.PublishReport(ctx, wr, fmt.Sprintf("report-%s.json", report.RunID), report)

	if err != nil {
		return err
	}

	err = media.PublishFeatureCollection(ctx, wr, fmt.Sprintf("features-%s.geojson", report.RunID), report.RunID, report.Outcomes)

	if err != nil {
		return err
	}

	return wr.Close(ctx)
}

func recordReport(ctx context.Context, path string, report *process.Report) error {

	j, err := journal.Open(ctx, path)

	if err != nil {
		return err
	}

	defer j.Close()

	return j.Record(ctx, report)
}

func serveMetrics(address string, reg *prometheus.Registry, logger *slog.Logger) {

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(rsp http.ResponseWriter, req *http.Request) {
		rsp.WriteHeader(http.StatusOK)
		rsp.Write([]byte("OK"))
	})

	logger.Info("Serving metrics", "address", address)

	err := http.ListenAndServe(address, mux)

	if err != nil {
		logger.Error("Metrics server failed", "error", err)
	}
}
