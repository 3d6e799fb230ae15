// Package photo defines the records, plans and outcomes passed between photo discovery,
// the processing pipeline and the executor which writes cloned photos.
package photo

import (
	"context"
	"time"

	"github.com/sfomuseum/go-media-clone/policy"
	"github.com/sfomuseum/go-media-clone/track"
)

// Record is a photo found by discovery.
type Record struct {
	// The path (or bucket key) of the photo, relative to the source root.
	Path string `json:"path"`
	// The time the photo was taken.
	CaptureTime time.Time `json:"capture_time"`
	// The photo's star rating. Unrated photos are assigned policy.DefaultRating.
	Rating policy.Rating `json:"rating"`
	// The size of the photo in bytes.
	Size int64 `json:"size"`
	// The photo's mimetype, derived from its extension.
	MimeType string `json:"mimetype,omitempty"`
	// The SHA-1 hash of the photo's contents.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Plan is everything an Executor needs to clone a single photo.
type Plan struct {
	Record *Record
	Rule   *policy.Rule
	// Fix is nil if no position could be determined for the photo's capture time.
	Fix *track.GeoFix
}

// Result describes the file an Executor wrote.
type Result struct {
	OutputPath  string        `json:"output_path"`
	Format      policy.Format `json:"format"`
	Bytes       int64         `json:"bytes"`
	Resized     bool          `json:"resized"`
	Converted   bool          `json:"converted"`
	GPSAdded    bool          `json:"gps_added"`
	Existing    bool          `json:"existing,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	ImageHash   string        `json:"imagehash,omitempty"`
}

// Executor clones a single photo according to a Plan. Implementations must write their
// output atomically: on failure the destination is either untouched or absent. Execute
// must be safe to call from multiple goroutines.
type Executor interface {
	Execute(context.Context, *Plan) (*Result, error)
}

// ExecutorFunc adapts an ordinary function to the Executor interface.
type ExecutorFunc func(context.Context, *Plan) (*Result, error)

// Execute calls f(ctx, plan).
func (f ExecutorFunc) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	return f(ctx, plan)
}
