// Package rotate turns images the right way up according to their EXIF orientation.
package rotate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/aaronland/go-image-tools/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation values defined by the EXIF specification.
const (
	OrientationNormal     = 1
	OrientationFlipH      = 2
	OrientationRotate180  = 3
	OrientationFlipV      = 4
	OrientationTranspose  = 5
	OrientationRotate90   = 6
	OrientationTransverse = 7
	OrientationRotate270  = 8
)

// ErrNoOrientation is returned by Orientation when body does not record one.
var ErrNoOrientation = errors.New("No orientation")

// Orientation returns the EXIF orientation recorded in body.
func Orientation(body []byte) (int, error) {

	x, err := exif.Decode(bytes.NewReader(body))

	if err != nil {
		return 0, ErrNoOrientation
	}

	tag, err := x.Get(exif.Orientation)

	if err != nil {
		return 0, ErrNoOrientation
	}

	v, err := tag.Int(0)

	if err != nil {
		return 0, fmt.Errorf("Failed to read orientation, %w", err)
	}

	if v < OrientationNormal || v > OrientationRotate270 {
		return 0, fmt.Errorf("Invalid orientation %d", v)
	}

	return v, nil
}

// RotateImage rotates im clockwise by degrees, which must be a multiple of 90.
func RotateImage(im image.Image, degrees int) (image.Image, error) {

	if degrees%90 != 0 {
		return nil, fmt.Errorf("Invalid rotation %d", degrees)
	}

	degrees = ((degrees % 360) + 360) % 360

	if degrees == 0 {
		return im, nil
	}

	// imaging rotates counter-clockwise
	return imaging.Rotate(im, float64(360-degrees), color.White), nil
}

// Normalize returns im transformed so that it displays correctly without an orientation
// tag. The boolean is true if im was changed.
func Normalize(im image.Image, orientation int) (image.Image, bool, error) {

	switch orientation {
	case 0, OrientationNormal:
		return im, false, nil
	case OrientationFlipH:
		return flipHorizontal(im), true, nil
	case OrientationRotate180:
		rotated, err := RotateImage(im, 180)
		return rotated, err == nil, err
	case OrientationFlipV:
		return flipVertical(im), true, nil
	case OrientationTranspose:
		rotated, err := RotateImage(im, 90)

		if err != nil {
			return nil, false, err
		}

		return flipHorizontal(rotated), true, nil
	case OrientationRotate90:
		rotated, err := RotateImage(im, 90)
		return rotated, err == nil, err
	case OrientationTransverse:
		rotated, err := RotateImage(im, 270)

		if err != nil {
			return nil, false, err
		}

		return flipHorizontal(rotated), true, nil
	case OrientationRotate270:
		rotated, err := RotateImage(im, 270)
		return rotated, err == nil, err
	default:
		return nil, false, fmt.Errorf("Invalid orientation %d", orientation)
	}
}

func flipHorizontal(im image.Image) image.Image {

	b := im.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-x, y-b.Min.Y, im.At(x, y))
		}
	}

	return dst
}

func flipVertical(im image.Image) image.Image {

	b := im.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x-b.Min.X, b.Max.Y-1-y, im.At(x, y))
		}
	}

	return dst
}
