package process

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sfomuseum/go-media-clone/photo"
)

// Progress counts photos as they are processed. It is safe for concurrent use and may be
// read while a run is in progress.
type Progress struct {
	total     atomic.Int64
	attempted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// ProgressSnapshot is a point-in-time copy of a Progress.
type ProgressSnapshot struct {
	Total     int64
	Attempted int64
	Succeeded int64
	Failed    int64
}

// NewProgress returns a new Progress.
func NewProgress() *Progress {
	return &Progress{}
}

// Snapshot returns the current counts.
func (p *Progress) Snapshot() ProgressSnapshot {

	return ProgressSnapshot{
		Total:     p.total.Load(),
		Attempted: p.attempted.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Progress) record(o *photo.Outcome) {

	p.attempted.Add(1)

	switch o.Status {
	case photo.StatusOK:
		p.succeeded.Add(1)
	case photo.StatusFailed:
		p.failed.Add(1)
	}
}

// Log writes the current counts to logger every interval until ctx is done.
func (p *Progress) Log(ctx context.Context, logger *slog.Logger, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:

			s := p.Snapshot()

			logger.Info("Progress",
				"processed", s.Attempted,
				"total", s.Total,
				"ok", s.Succeeded,
				"failed", s.Failed,
			)
		}
	}
}
