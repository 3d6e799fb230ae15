package clone

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"strings"

	"github.com/aaronland/go-image-tools/util"
	"github.com/nfnt/resize"
	"github.com/sfomuseum/go-media-clone/operations/rotate"
	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/sfomuseum/go-media-clone/policy"
	"golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned when a rule asks for a format that can not be encoded.
var ErrUnsupportedFormat = errors.New("Unsupported output format")

// megapixelTolerance is the fraction of the target pixel count above which an image is
// considered close enough to its megapixel target to be left alone.
const megapixelTolerance = 0.9

// Transformed is the result of applying a policy rule to an image.
type Transformed struct {
	Body      []byte
	Image     image.Image
	Format    policy.Format
	Resized   bool
	Converted bool
	Rotated   bool
}

// Transform decodes body, turns it the right way up, resizes it and encodes it according
// to rule. path is only used to label errors.
func Transform(path string, body []byte, rule *policy.Rule) (*Transformed, error) {

	im, src_format, err := util.DecodeImageFromReader(bytes.NewReader(body))

	if err != nil {
		return nil, photo.NewTransformError(path, photo.StageDecode, err)
	}

	t := &Transformed{}

	orientation, err := rotate.Orientation(body)

	if err == nil {

		normalized, changed, err := rotate.Normalize(im, orientation)

		if err != nil {
			return nil, photo.NewTransformError(path, photo.StageDecode, err)
		}

		im = normalized
		t.Rotated = changed
	}

	resized, ok, err := ResizeImage(im, rule.Resize)

	if err != nil {
		return nil, photo.NewTransformError(path, photo.StageResize, err)
	}

	im = resized
	t.Resized = ok

	source := FormatFromName(src_format)
	target := rule.Format

	if target == policy.FormatPreserve {
		target = source
	}

	var buf bytes.Buffer

	err = EncodeImage(&buf, im, target, src_format, rule.Quality)

	if err != nil {
		return nil, photo.NewTransformError(path, photo.StageEncode, err)
	}

	t.Body = buf.Bytes()
	t.Image = im
	t.Format = target
	t.Converted = target != source

	return t, nil
}

// ResizeImage scales im according to r. The boolean is false if im was returned unchanged.
func ResizeImage(im image.Image, r policy.Resize) (image.Image, bool, error) {

	b := im.Bounds()
	width := b.Dx()
	height := b.Dy()

	if width == 0 || height == 0 {
		return nil, false, errors.New("Image has no pixels")
	}

	var scale float64

	switch r.Mode {
	case policy.ResizePreserve:
		return im, false, nil
	case policy.ResizePercentage:

		if r.Value <= 0 || r.Value > 100 {
			return nil, false, fmt.Errorf("Invalid resize percentage %d", r.Value)
		}

		if r.Value == 100 {
			return im, false, nil
		}

		scale = float64(r.Value) / 100.0

	case policy.ResizeMegapixels:

		if r.Value <= 0 {
			return nil, false, fmt.Errorf("Invalid megapixel target %d", r.Value)
		}

		target := float64(r.Value) * 1000000.0
		proportion := target / float64(width*height)

		if proportion > megapixelTolerance {
			return im, false, nil
		}

		// proportion applies to the pixel count, not to each side
		scale = math.Sqrt(proportion)

	default:
		return nil, false, fmt.Errorf("Unknown resize mode %d", r.Mode)
	}

	new_width := uint(math.Max(1, math.Round(float64(width)*scale)))
	new_height := uint(math.Max(1, math.Round(float64(height)*scale)))

	return resize.Resize(new_width, new_height, im, resize.Lanczos3), true, nil
}

// EncodeImage writes im to wr in format. src_format is the name image.Decode reported
// for the original and is used for formats policy.Format does not name.
func EncodeImage(wr io.Writer, im image.Image, format policy.Format, src_format string, quality int) error {

	switch format {
	case policy.FormatJPEG:

		if quality < 1 || quality > 100 {
			quality = policy.DefaultQuality
		}

		return jpeg.Encode(wr, im, &jpeg.Options{Quality: quality})

	case policy.FormatTIFF:
		return tiff.Encode(wr, im, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case policy.FormatPNG:
		return util.EncodeImage(im, "png", wr)
	case policy.FormatHEIC:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	case policy.FormatPreserve:
		return util.EncodeImage(im, src_format, wr)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// FormatFromName maps an image.Decode format name, or a filename extension, to a Format.
// Formats which can not be named are returned as policy.FormatPreserve.
func FormatFromName(name string) policy.Format {

	switch strings.TrimPrefix(strings.ToLower(name), ".") {
	case "jpeg", "jpg":
		return policy.FormatJPEG
	case "png":
		return policy.FormatPNG
	case "tiff", "tif":
		return policy.FormatTIFF
	case "heic", "heif":
		return policy.FormatHEIC
	default:
		return policy.FormatPreserve
	}
}

// Extension returns the filename extension for f, including the leading dot.
func Extension(f policy.Format) string {

	switch f {
	case policy.FormatJPEG:
		return ".jpg"
	case policy.FormatPNG:
		return ".png"
	case policy.FormatTIFF:
		return ".tif"
	case policy.FormatHEIC:
		return ".heic"
	default:
		return ""
	}
}
