// Package policy maps photo ratings to the transformation (resize, quality, format) that
// should be applied when a photo is cloned.
package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// Rating is the 0-5 star rating recorded for a photo.
type Rating int

const (
	// MinRating is the lowest valid rating.
	MinRating Rating = 0
	// MaxRating is the highest valid rating. It is also the rating assumed for photos
	// without one.
	MaxRating Rating = 5
	// DefaultRating is the rating used for photos which have not been rated.
	DefaultRating = MaxRating
)

// Valid reports whether r is between MinRating and MaxRating.
func (r Rating) Valid() bool {
	return r >= MinRating && r <= MaxRating
}

// ResizeMode describes how the pixel dimensions of a photo are changed.
type ResizeMode int

const (
	// ResizePreserve keeps the original dimensions.
	ResizePreserve ResizeMode = iota
	// ResizePercentage scales each dimension to Value percent.
	ResizePercentage
	// ResizeMegapixels scales the photo so that it contains roughly Value million pixels.
	ResizeMegapixels
)

// Resize is a resize instruction.
type Resize struct {
	Mode  ResizeMode `json:"mode"`
	Value int        `json:"value,omitempty"`
}

// String returns the configuration form of r: "preserve", "50%" or "36m".
func (r Resize) String() string {

	switch r.Mode {
	case ResizePercentage:
		return fmt.Sprintf("%d%%", r.Value)
	case ResizeMegapixels:
		return fmt.Sprintf("%dm", r.Value)
	default:
		return "preserve"
	}
}

// Format is the image format a photo is written as.
type Format string

const (
	FormatPreserve Format = "preserve"
	FormatJPEG     Format = "jpeg"
	FormatPNG      Format = "png"
	FormatTIFF     Format = "tiff"
	FormatHEIC     Format = "heic"
)

// ParseFormat returns the Format named by s. "jpg" is accepted as an alias for "jpeg" and
// the empty string as an alias for "preserve".
func ParseFormat(s string) (Format, error) {

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preserve":
		return FormatPreserve, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "heic", "heif":
		return FormatHEIC, nil
	default:
		return "", fmt.Errorf("Invalid format '%s'", s)
	}
}

func (f Format) known() bool {

	switch f {
	case FormatPreserve, FormatJPEG, FormatPNG, FormatTIFF, FormatHEIC:
		return true
	default:
		return false
	}
}

// DefaultQuality is the encoding quality used when a rule converts a photo without
// specifying one.
const DefaultQuality = 95

// Rule is a single entry in a policy table.
type Rule struct {
	// A label for the rule, used in logs and reports.
	Name string `json:"name"`
	// The ratings this rule applies to.
	Ratings []Rating `json:"ratings"`
	// How to resize matching photos.
	Resize Resize `json:"resize"`
	// JPEG encoding quality, 1-100.
	Quality int `json:"quality,omitempty"`
	// The format to write matching photos in.
	Format Format `json:"format"`
	// Bypass is true for rules which copy matching photos unchanged.
	Bypass bool `json:"bypass"`
}

// Matches reports whether r lists rating.
func (r *Rule) Matches(rating Rating) bool {

	for _, candidate := range r.Ratings {

		if candidate == rating {
			return true
		}
	}

	return false
}

// String implements fmt.Stringer
func (r *Rule) String() string {

	if r.Bypass {
		return fmt.Sprintf("%s (bypass)", r.Name)
	}

	return fmt.Sprintf("%s (resize=%s quality=%d format=%s)", r.Name, r.Resize, r.Quality, r.Format)
}

func defaultRuleName(ratings []Rating) string {

	str_ratings := make([]string, len(ratings))

	for i, r := range ratings {
		str_ratings[i] = strconv.Itoa(int(r))
	}

	return "rate:" + strings.Join(str_ratings, ",")
}
