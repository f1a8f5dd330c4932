// Package imagenorm re-orients and re-encodes uploaded images so every
// stored image displays upright and shares one format.
package imagenorm

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register the WebP decoder with image.Decode
)

// Quality is the JPEG quality normalized images are encoded at.
const Quality = 80

// MIME types accepted for upload.
const (
	TypeJPEG = "image/jpeg"
	TypePNG  = "image/png"
	TypeWebP = "image/webp"
	TypeHEIF = "image/heif"
	TypeHEIC = "image/heic"
)

// Allowed reports whether contentType may be uploaded.
func Allowed(contentType string) bool {
	switch contentType {
	case TypeJPEG, TypePNG, TypeWebP, TypeHEIF, TypeHEIC:
		return true
	}
	return false
}

// ErrDecode is returned when the bytes are not a decodable image of the
// declared type.
var ErrDecode = errors.New("imagenorm: cannot decode image")

// Result is a normalized image ready for storage.
type Result struct {
	Data        []byte
	ContentType string
	Ext         string
	Width       int
	Height      int
}

// Normalizer turns uploaded bytes into stored bytes.
type Normalizer interface {
	Normalize(data []byte, contentType string) (Result, error)
}

// JPEG normalizes to JPEG at Quality, applying EXIF orientation. HEIF
// input has no pure-Go decoder and is stored as uploaded.
type JPEG struct {
	Quality int
}

// New returns the default normalizer.
func New() JPEG { return JPEG{Quality: Quality} }

func (n JPEG) Normalize(data []byte, contentType string) (Result, error) {
	if contentType == TypeHEIF || contentType == TypeHEIC {
		return Result{Data: data, ContentType: contentType, Ext: "heif"}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return n.encode(img)
}

// Avatar center-crops the image to a square on its short side and encodes
// it as JPEG. HEIF has no decoder here and is rejected.
func (n JPEG) Avatar(data []byte, contentType string) (Result, error) {
	if contentType == TypeHEIF || contentType == TypeHEIC {
		return Result{}, fmt.Errorf("%w: %s cannot be cropped", ErrDecode, contentType)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	return n.encode(imaging.CropCenter(img, side, side))
}

func (n JPEG) encode(img image.Image) (Result, error) {
	q := n.Quality
	if q <= 0 || q > 100 {
		q = Quality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return Result{}, fmt.Errorf("imagenorm: encode: %w", err)
	}
	b := img.Bounds()
	return Result{
		Data:        buf.Bytes(),
		ContentType: TypeJPEG,
		Ext:         "jpeg",
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}

// flatten paints transparent pixels onto white; JPEG has no alpha and would
// otherwise render them black.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), image.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
