// Package process clones a batch of photos using a bounded pool of workers, resolving a
// policy rule and a GPS fix for each photo before handing it to a photo.Executor.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aaronland/go-string/random"
	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/sfomuseum/go-media-clone/policy"
	"github.com/sfomuseum/go-media-clone/track"
)

// ProcessOptions defines the collaborators and settings for a run.
type ProcessOptions struct {
	// The Executor which writes each cloned photo. Required.
	Executor photo.Executor
	// The validated policy table. Required.
	Policy *policy.Table
	// The GPS track used to geotag photos. May be nil or empty.
	Track *track.Track
	// The maximum distance in time between a photo and a track point. Zero or less matches
	// exact timestamps only.
	Window time.Duration
	// The number of photos processed concurrently. Must be at least 1.
	Workers int
	// Skip GPS lookups entirely.
	IgnoreGeotag bool
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Optional Prometheus collectors.
	Metrics *Metrics
	// Optional progress counters, for callers that want to observe a run while it happens.
	Progress *Progress
	// If greater than zero, progress is logged at this interval.
	ProgressInterval time.Duration
}

// ErrCancelled is the reason recorded for photos which were never started because the
// run was cancelled.
var ErrCancelled = errors.New("cancelled")

// ProcessPhotos clones records according to opts and returns a report of the run. The
// failure of an individual photo is recorded in the report and does not stop the run.
// An error is only returned if the run could not start.
//
// Cancelling ctx stops workers from starting new photos. Photos already handed to the
// Executor are allowed to finish; every other photo is reported as skipped.
func ProcessPhotos(ctx context.Context, opts *ProcessOptions, records ...*photo.Record) (*Report, error) {

	if opts == nil {
		return nil, fmt.Errorf("Missing process options")
	}

	if opts.Executor == nil {
		return nil, fmt.Errorf("Missing executor")
	}

	if opts.Policy == nil {
		return nil, fmt.Errorf("Missing policy table")
	}

	if opts.Workers < 1 {
		return nil, fmt.Errorf("Invalid worker count %d", opts.Workers)
	}

	logger := opts.Logger

	if logger == nil {
		logger = slog.Default()
	}

	rand_opts := random.DefaultOptions()
	rand_opts.AlphaNumeric = true
	rand_opts.Length = 12

	run_id, err := random.String(rand_opts)

	if err != nil {
		return nil, fmt.Errorf("Failed to generate run ID, %w", err)
	}

	logger = logger.With("run", run_id)

	jobs := make([]*photo.Record, 0, len(records))

	for _, rec := range records {

		if rec == nil {
			continue
		}

		jobs = append(jobs, rec)
	}

	progress := opts.Progress

	if progress == nil {
		progress = NewProgress()
	}

	progress.total.Store(int64(len(jobs)))

	p := &processor{
		opts:     opts,
		window:   opts.Window,
		logger:   logger,
		progress: progress,
	}

	started := time.Now()

	logger.Info("Start processing", "photos", len(jobs), "workers", opts.Workers)

	if opts.ProgressInterval > 0 {

		progress_ctx, progress_cancel := context.WithCancel(ctx)
		defer progress_cancel()

		go progress.Log(progress_ctx, logger, opts.ProgressInterval)
	}

	outcomes := make([]*photo.Outcome, len(jobs))

	job_ch := make(chan int)

	go func() {

		defer close(job_ch)

		for idx := range jobs {

			if ctx.Err() != nil {
				return
			}

			select {
			case <-ctx.Done():
				return
			case job_ch <- idx:
				// pass
			}
		}
	}()

	wg := new(sync.WaitGroup)

	for i := 0; i < opts.Workers; i++ {

		wg.Add(1)

		go func() {

			defer wg.Done()

			for idx := range job_ch {

				// cancellation is only observed between jobs
				if ctx.Err() != nil {
					continue
				}

				// a job that has been started runs to completion
				job_ctx := context.WithoutCancel(ctx)
				outcomes[idx] = p.processRecord(job_ctx, jobs[idx])
			}
		}()
	}

	wg.Wait()

	for idx, o := range outcomes {

		if o != nil {
			continue
		}

		outcomes[idx] = &photo.Outcome{
			Path:   jobs[idx].Path,
			Status: photo.StatusSkipped,
			Error:  ErrCancelled.Error(),
		}

		opts.Metrics.jobSkipped()
	}

	report := newReport(run_id, opts.Workers, started, time.Now(), outcomes)
	report.Cancelled = ctx.Err() != nil

	logger.Info("Finished processing",
		"attempted", report.Attempted,
		"ok", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"cancelled", report.Cancelled,
		"elapsed", report.Finished.Sub(report.Started).String(),
	)

	return report, nil
}

type processor struct {
	opts     *ProcessOptions
	window   time.Duration
	logger   *slog.Logger
	progress *Progress
}

func (p *processor) processRecord(ctx context.Context, rec *photo.Record) *photo.Outcome {

	start := time.Now()
	p.opts.Metrics.jobStarted()

	logger := p.logger.With("path", rec.Path)

	o := &photo.Outcome{
		Path: rec.Path,
	}

	defer func() {
		p.progress.record(o)
		p.opts.Metrics.jobFinished(o, start)
	}()

	rule, err := p.opts.Policy.Resolve(rec.Rating)

	if err != nil {
		o.Status = photo.StatusFailed
		o.Error = photo.NewTransformError(rec.Path, photo.StagePolicy, err).Error()
		logger.Warn("Failed to resolve policy", "rating", rec.Rating, "error", err)
		return o
	}

	o.Rule = rule.Name

	var fix *track.GeoFix

	if !p.opts.IgnoreGeotag {

		f, ok := p.opts.Track.Locate(rec.CaptureTime, p.window)

		if ok {
			fix = f
			o.GPS = f
		} else {
			logger.Debug("No GPS fix", "capture time", rec.CaptureTime)
		}
	}

	plan := &photo.Plan{
		Record: rec,
		Rule:   rule,
		Fix:    fix,
	}

	rsp, err := execute(ctx, p.opts.Executor, plan)

	if err != nil {
		o.Status = photo.StatusFailed
		o.Error = err.Error()
		logger.Warn("Failed to process photo", "error", err)
		return o
	}

	o.Status = photo.StatusOK
	o.Result = rsp

	logger.Debug("Processed photo", "rule", rule.Name, "elapsed", time.Since(start).String())
	return o
}

// execute calls ex.Execute and converts a panic into a TransformError.
func execute(ctx context.Context, ex photo.Executor, plan *photo.Plan) (rsp *photo.Result, err error) {

	defer func() {

		r := recover()

		if r != nil {
			rsp = nil
			err = photo.NewTransformError(plan.Record.Path, photo.StageExecute, fmt.Errorf("panic: %v", r))
		}
	}()

	return ex.Execute(ctx, plan)
}
