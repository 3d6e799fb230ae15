package clone

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/sfomuseum/go-media-clone/common"
	"github.com/sfomuseum/go-media-clone/track"
)

// Metadata describes the metadata to write to a cloned photo.
type Metadata struct {
	// A local copy of the original photo whose descriptive tags should be carried over,
	// or "" if the clone already has them.
	SourcePath string
	// The position to record, or nil.
	Fix *track.GeoFix
	// Set if the pixels were turned the right way up and the orientation tag must be reset.
	Normalized bool
}

// MetadataWriter writes metadata to a file on the local filesystem, in place.
type MetadataWriter interface {
	WriteMetadata(context.Context, string, *Metadata) error
}

// Tags carried over from the original photo when it is re-encoded.
var copy_tags = []string{
	"DateTimeOriginal",
	"CreateDate",
	"OffsetTimeOriginal",
	"SubSecTimeOriginal",
	"Make",
	"Model",
	"LensModel",
	"ExposureTime",
	"FNumber",
	"ISO",
	"FocalLength",
	"Artist",
	"Copyright",
	"Rating",
	"ImageDescription",
}

// ExiftoolMetadata is a MetadataWriter backed by exiftool.
type ExiftoolMetadata struct {
	Exiftool *common.Exiftool
}

// WriteMetadata implements MetadataWriter
func (m *ExiftoolMetadata) WriteMetadata(ctx context.Context, path string, md *Metadata) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		// pass
	}

	tags := make(map[string]string)

	if md.SourcePath != "" {

		src_tags, err := m.Exiftool.ReadTags(md.SourcePath, copy_tags...)

		if err != nil {
			return fmt.Errorf("Failed to read tags from original, %w", err)
		}

		for k, v := range src_tags {
			tags[k] = v
		}
	}

	if md.Normalized {
		// a trailing # tells exiftool the value is numeric
		tags["Orientation#"] = "1"
	}

	for k, v := range GPSTags(md.Fix) {
		tags[k] = v
	}

	return m.Exiftool.WriteTags(path, tags)
}

// GPSTags returns the exiftool tags recording fix. It returns nil if fix is nil.
func GPSTags(fix *track.GeoFix) map[string]string {

	if fix == nil {
		return nil
	}

	lat_ref := "N"

	if fix.Latitude < 0 {
		lat_ref = "S"
	}

	lon_ref := "E"

	if fix.Longitude < 0 {
		lon_ref = "W"
	}

	tags := map[string]string{
		"GPSLatitude":     formatFloat(math.Abs(fix.Latitude)),
		"GPSLatitudeRef":  lat_ref,
		"GPSLongitude":    formatFloat(math.Abs(fix.Longitude)),
		"GPSLongitudeRef": lon_ref,
	}

	if fix.Altitude != nil {

		alt_ref := "0"

		if *fix.Altitude < 0 {
			alt_ref = "1"
		}

		tags["GPSAltitude"] = formatFloat(math.Abs(*fix.Altitude))
		tags["GPSAltitudeRef#"] = alt_ref
	}

	return tags
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
