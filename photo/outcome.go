package photo

import (
	"fmt"

	"github.com/sfomuseum/go-media-clone/track"
)

// Status is the final state of a single photo in a run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome records what happened to a single photo.
type Outcome struct {
	Path   string        `json:"path"`
	Status Status        `json:"status"`
	Error  string        `json:"error,omitempty"`
	Rule   string        `json:"rule,omitempty"`
	GPS    *track.GeoFix `json:"gps,omitempty"`
	Result *Result       `json:"result,omitempty"`
}

// Stages reported by TransformError.
const (
	StageRead     = "read"
	StageDecode   = "decode"
	StageResize   = "resize"
	StageEncode   = "encode"
	StageMetadata = "metadata"
	StageWrite    = "write"
	StagePolicy   = "policy"
	StageExecute  = "execute"
)

// TransformError is a failure to clone a single photo.
type TransformError struct {
	Path  string
	Stage string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("Failed to clone '%s' (%s), %v", e.Path, e.Stage, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// NewTransformError returns a TransformError for path.
func NewTransformError(path string, stage string, err error) *TransformError {
	return &TransformError{
		Path:  path,
		Stage: stage,
		Err:   err,
	}
}
