package track

import (
	"errors"
	"fmt"
)

// ErrNoPoints is reported (wrapped in a SourceParseError) for a source that parsed
// cleanly but did not contain a single timestamped point.
var ErrNoPoints = errors.New("No timestamped points")

// ErrUnknownFormat is reported (wrapped in a SourceParseError) for a source that is
// neither GPX nor GeoJSON.
var ErrUnknownFormat = errors.New("Unknown track-log format")

// SourceParseError records a track-log source that could not be used.
type SourceParseError struct {
	Source string
	Err    error
}

func (e *SourceParseError) Error() string {
	return fmt.Sprintf("Failed to parse track source '%s', %v", e.Source, e.Err)
}

func (e *SourceParseError) Unwrap() error {
	return e.Err
}
