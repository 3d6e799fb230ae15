package common

import (
	"errors"
	"fmt"
	"sync"

	"github.com/barasher/go-exiftool"
)

// Exiftool wraps a long-running exiftool process. The underlying process is not safe for
// concurrent use so every call is serialized.
type Exiftool struct {
	et *exiftool.Exiftool
	mu *sync.Mutex
}

// NewExiftool starts a new exiftool process. The exiftool binary must be on the PATH.
func NewExiftool() (*Exiftool, error) {

	et, err := exiftool.NewExiftool()

	if err != nil {
		return nil, fmt.Errorf("Failed to start exiftool, %w", err)
	}

	e := &Exiftool{
		et: et,
		mu: new(sync.Mutex),
	}

	return e, nil
}

// ReadTags returns the tags for path whose names are listed in keys. Tags that are not
// present are omitted.
func (e *Exiftool) ReadTags(path string, keys ...string) (map[string]string, error) {

	e.mu.Lock()
	defer e.mu.Unlock()

	fms := e.et.ExtractMetadata(path)

	if len(fms) == 0 {
		return nil, fmt.Errorf("No metadata returned for %s", path)
	}

	fm := fms[0]

	if fm.Err != nil {
		return nil, fmt.Errorf("Failed to extract metadata from %s, %w", path, fm.Err)
	}

	tags := make(map[string]string)

	for _, k := range keys {

		v, err := fm.GetString(k)

		if errors.Is(err, exiftool.ErrKeyNotFound) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("Failed to read %s from %s, %w", k, path, err)
		}

		tags[k] = v
	}

	return tags, nil
}

// Rating returns the XMP/EXIF rating for path. The boolean is false if the file has no rating.
func (e *Exiftool) Rating(path string) (int, bool, error) {

	e.mu.Lock()
	defer e.mu.Unlock()

	fms := e.et.ExtractMetadata(path)

	if len(fms) == 0 {
		return 0, false, fmt.Errorf("No metadata returned for %s", path)
	}

	fm := fms[0]

	if fm.Err != nil {
		return 0, false, fmt.Errorf("Failed to extract metadata from %s, %w", path, fm.Err)
	}

	v, err := fm.GetInt("Rating")

	if errors.Is(err, exiftool.ErrKeyNotFound) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("Failed to read rating from %s, %w", path, err)
	}

	return int(v), true, nil
}

// WriteTags sets tags on path, overwriting the file in place.
func (e *Exiftool) WriteTags(path string, tags map[string]string) error {

	if len(tags) == 0 {
		return nil
	}

	fm := exiftool.EmptyFileMetadata()
	fm.File = path

	for k, v := range tags {
		fm.SetString(k, v)
	}

	fms := []exiftool.FileMetadata{fm}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.et.WriteMetadata(fms)

	if fms[0].Err != nil {
		return fmt.Errorf("Failed to write metadata to %s, %w", path, fms[0].Err)
	}

	return nil
}

// Close stops the exiftool process.
func (e *Exiftool) Close() error {
	return e.et.Close()
}
