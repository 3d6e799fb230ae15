package rotate

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"
)

var (
	red  = color.RGBA{255, 0, 0, 255}
	blue = color.RGBA{0, 0, 255, 255}
)

// testImage returns a 2x1 image: red on the left, blue on the right.
func testImage() image.Image {

	im := image.NewRGBA(image.Rect(0, 0, 2, 1))
	im.Set(0, 0, red)
	im.Set(1, 0, blue)
	return im
}

func sameColor(a color.Color, b color.Color) bool {

	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()

	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

// orientationTIFF returns a bare little-endian TIFF header with an IFD0 holding only an
// Orientation tag, which is enough for exif.Decode.
func orientationTIFF(orientation uint16) []byte {

	le := binary.LittleEndian

	body := []byte{'I', 'I', 0x2A, 0x00}
	body = le.AppendUint32(body, 8)
	body = le.AppendUint16(body, 1)
	body = le.AppendUint16(body, 0x0112)
	body = le.AppendUint16(body, 3)
	body = le.AppendUint32(body, 1)
	body = le.AppendUint16(body, orientation)
	body = le.AppendUint16(body, 0)
	body = le.AppendUint32(body, 0)

	return body
}

func TestOrientation(t *testing.T) {

	v, err := Orientation(orientationTIFF(6))

	if err != nil {
		t.Fatalf("Failed to read orientation, %v", err)
	}

	if v != OrientationRotate90 {
		t.Fatalf("Expected orientation 6, got %d", v)
	}

	_, err = Orientation([]byte("nope"))

	if err != ErrNoOrientation {
		t.Fatalf("Expected ErrNoOrientation, got %v", err)
	}

	_, err = Orientation(orientationTIFF(12))

	if err == nil {
		t.Fatalf("Expected invalid orientation to fail")
	}
}

func TestNormalize(t *testing.T) {

	tests := []struct {
		orientation int
		width       int
		height      int
		// the colour at 0,0 after normalizing
		origin  color.Color
		changed bool
	}{
		{OrientationNormal, 2, 1, red, false},
		{0, 2, 1, red, false},
		{OrientationFlipH, 2, 1, blue, true},
		{OrientationRotate180, 2, 1, blue, true},
		{OrientationFlipV, 2, 1, red, true},
		{OrientationRotate90, 1, 2, red, true},
		{OrientationRotate270, 1, 2, blue, true},
	}

	for _, test := range tests {

		im, changed, err := Normalize(testImage(), test.orientation)

		if err != nil {
			t.Fatalf("Failed to normalize orientation %d, %v", test.orientation, err)
		}

		if changed != test.changed {
			t.Fatalf("Expected changed=%t for orientation %d", test.changed, test.orientation)
		}

		b := im.Bounds()

		if b.Dx() != test.width || b.Dy() != test.height {
			t.Fatalf("Expected %dx%d for orientation %d, got %dx%d", test.width, test.height, test.orientation, b.Dx(), b.Dy())
		}

		if !sameColor(im.At(b.Min.X, b.Min.Y), test.origin) {
			t.Fatalf("Unexpected origin colour for orientation %d, %v", test.orientation, im.At(b.Min.X, b.Min.Y))
		}
	}

	_, _, err := Normalize(testImage(), 9)

	if err == nil {
		t.Fatalf("Expected invalid orientation to fail")
	}
}

func TestRotateImage(t *testing.T) {

	_, err := RotateImage(testImage(), 45)

	if err == nil {
		t.Fatalf("Expected rotation by 45 degrees to fail")
	}

	im, err := RotateImage(testImage(), 360)

	if err != nil {
		t.Fatalf("Failed to rotate, %v", err)
	}

	if im.Bounds().Dx() != 2 {
		t.Fatalf("Expected full rotation to be a no-op")
	}
}
