package gather

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/sfomuseum/go-media-clone/common"
)

// xmp:Rating appears either as an attribute of rdf:Description or as an element.
var re_xmp_rating = regexp.MustCompile(`xmp:Rating(?:="|>)\s*(-?[0-9]+)`)

// XMPRating returns the xmp:Rating value from the first XMP packet in body.
func XMPRating(body []byte) (int, bool) {

	start := bytes.Index(body, []byte("<x:xmpmeta"))

	if start == -1 {
		return 0, false
	}

	m := re_xmp_rating.FindSubmatch(body[start:])

	if m == nil {
		return 0, false
	}

	v, err := strconv.Atoi(string(m[1]))

	if err != nil {
		return 0, false
	}

	return v, true
}

// ExiftoolRatings is a RatingReader which asks exiftool for the rating of photos stored
// beneath a local directory. It can read ratings from RAW files and sidecars which do
// not carry an XMP packet in their first few hundred kilobytes.
type ExiftoolRatings struct {
	// The local directory the bucket being gathered is rooted in.
	Root     string
	Exiftool *common.Exiftool
}

// ReadRating implements RatingReader
func (r *ExiftoolRatings) ReadRating(ctx context.Context, key string) (int, bool, error) {

	select {
	case <-ctx.Done():
		return 0, false, ctx.Err()
	default:
		// pass
	}

	return r.Exiftool.Rating(filepath.Join(r.Root, filepath.FromSlash(key)))
}
